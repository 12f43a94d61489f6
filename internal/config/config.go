package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dvloznov/promotion-consumer/internal/fetch"
	"github.com/dvloznov/promotion-consumer/internal/logger"
)

// EnvPrefix is prepended to every environment variable. Dots in keys become
// underscores, so "gcp.page_size" is read from PROMO_GCP_PAGE_SIZE.
const EnvPrefix = "PROMO"

// Config aggregates configuration for the promotion consumer.
type Config struct {
	GCP      GCPConfig      `mapstructure:"gcp" yaml:"gcp"`
	Async    AsyncConfig    `mapstructure:"async" yaml:"async"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Log      logger.Config  `mapstructure:"log" yaml:"log"`
}

// GCPConfig locates the promotion table and controls paging.
type GCPConfig struct {
	// ProjectID is the billing project the query job runs in.
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	// SourceProjectID owns the promotion table. Empty means ProjectID.
	SourceProjectID   string `mapstructure:"source_project_id" yaml:"source_project_id"`
	Dataset           string `mapstructure:"dataset" yaml:"dataset"`
	TableName         string `mapstructure:"table_name" yaml:"table_name"`
	Location          string `mapstructure:"location" yaml:"location"`
	PageSize          int    `mapstructure:"page_size" yaml:"page_size"`
	CredentialsFile   string `mapstructure:"credentials_file" yaml:"credentials_file"`
	StartDateOverride string `mapstructure:"start_date_override" yaml:"start_date_override"`
	EndDateOverride   string `mapstructure:"end_date_override" yaml:"end_date_override"`
}

// TableProject returns the project that owns the source table.
func (g GCPConfig) TableProject() string {
	if g.SourceProjectID != "" {
		return g.SourceProjectID
	}
	return g.ProjectID
}

// AsyncConfig sizes the persistence worker pool.
type AsyncConfig struct {
	CorePoolSize     int           `mapstructure:"core_pool_size" yaml:"core_pool_size"`
	MaxPoolSize      int           `mapstructure:"max_pool_size" yaml:"max_pool_size"`
	QueueCapacity    int           `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	KeepAlive        time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
	AwaitTermination time.Duration `mapstructure:"await_termination" yaml:"await_termination"`
}

// DatabaseConfig describes the relational store connection. URL wins over
// the individual fields when set.
type DatabaseConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             string        `mapstructure:"port" yaml:"port"`
	User             string        `mapstructure:"user" yaml:"user"`
	Password         string        `mapstructure:"password" yaml:"password"`
	DBName           string        `mapstructure:"dbname" yaml:"dbname"`
	SSLMode          string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxConns         int32         `mapstructure:"max_conns" yaml:"max_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
}

// MetricsConfig controls where run metrics are pushed.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	JobName        string `mapstructure:"job_name" yaml:"job_name"`
}

// ReportConfig controls the optional run report upload.
type ReportConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// ErrDatabaseNotConfigured is returned when neither a URL nor host/dbname is set.
var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

func defaults() map[string]any {
	return map[string]any{
		"gcp.location":               "US",
		"gcp.page_size":              2000,
		"gcp.start_date_override":    fetch.EpochSentinel,
		"gcp.end_date_override":      fetch.EpochSentinel,
		"async.core_pool_size":       4,
		"async.max_pool_size":        8,
		"async.queue_capacity":       20,
		"async.keep_alive":           "60s",
		"async.await_termination":    "5m",
		"database.port":              "5432",
		"database.max_conns":         10,
		"database.statement_timeout": "60s",
		"metrics.job_name":           "promotion_consumer",
		"report.prefix":              "promotion-consumer/runs",
		"log.level":                  "info",
	}
}

// Load reads configuration from an optional file and environment variables.
// When path is empty, config.yaml in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.Load: reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: decoding config: %w", err)
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, reflect.New(f.Type).Elem().Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// Validate reports every missing or inconsistent setting needed by a run.
func (c *Config) Validate() error {
	var problems []string
	if c.GCP.ProjectID == "" {
		problems = append(problems, "gcp.project_id is required")
	}
	if c.GCP.Dataset == "" {
		problems = append(problems, "gcp.dataset is required")
	}
	if c.GCP.TableName == "" {
		problems = append(problems, "gcp.table_name is required")
	}
	if c.GCP.PageSize <= 0 {
		problems = append(problems, "gcp.page_size must be positive")
	}
	if c.Async.CorePoolSize <= 0 {
		problems = append(problems, "async.core_pool_size must be positive")
	}
	if c.Async.MaxPoolSize < c.Async.CorePoolSize {
		problems = append(problems, "async.max_pool_size must be >= async.core_pool_size")
	}
	if c.Async.QueueCapacity < 0 {
		problems = append(problems, "async.queue_capacity must not be negative")
	}
	if _, err := c.Database.ConnString(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ConnString builds a PostgreSQL URL. It requires at minimum host and dbname
// when URL is not set.
func (d DatabaseConfig) ConnString() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}

	var missing []string
	if d.Host == "" {
		missing = append(missing, "database.host")
	}
	if d.DBName == "" {
		missing = append(missing, "database.dbname")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrDatabaseNotConfigured, strings.Join(missing, ", "))
	}

	port := d.Port
	if port == "" {
		port = "5432"
	}

	u := &url.URL{
		Scheme: "postgresql",
		Host:   d.Host + ":" + port,
		Path:   d.DBName,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}

	q := u.Query()
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Database.Password != "" {
		c.Database.Password = "****"
	}
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err == nil {
			c.Database.URL = u.Redacted()
		} else {
			c.Database.URL = "****"
		}
	}
	return c
}
