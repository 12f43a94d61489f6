package fetch

import (
	"time"
)

// EpochSentinel disables an override; it is the configured default.
const EpochSentinel = "1970-01-01T00:00:00Z"

// DateRange is a half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ResolveDateRange parses the configured overrides. Each bound falls back
// independently when its override is empty, unparsable or the epoch: the
// start to the beginning of the current UTC day, the end to the beginning of
// the next one.
func ResolveDateRange(startOverride, endOverride string, now time.Time) DateRange {
	today := now.UTC().Truncate(24 * time.Hour)
	return DateRange{
		Start: parseOrDefault(startOverride, today),
		End:   parseOrDefault(endOverride, today.AddDate(0, 0, 1)),
	}
}

func parseOrDefault(value string, fallback time.Time) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil || parsed.Equal(time.Unix(0, 0)) {
		return fallback
	}
	return parsed.UTC()
}
