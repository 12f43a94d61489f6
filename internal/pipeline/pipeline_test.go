package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/promotion-consumer/internal/domain"
	"github.com/dvloznov/promotion-consumer/internal/fetch"
	"github.com/dvloznov/promotion-consumer/internal/jobs"
	"github.com/dvloznov/promotion-consumer/internal/jobs/inmemory"
	"github.com/dvloznov/promotion-consumer/internal/metrics"
	"github.com/dvloznov/promotion-consumer/internal/persist"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher serves pages from memory. FetchPageFunc, when set, overrides it.
type mockFetcher struct {
	mu            sync.Mutex
	pages         [][]domain.TransactionDetail
	failAt        int
	calls         int
	FetchPageFunc func(ctx context.Context, req fetch.PageRequest) (*fetch.PageResponse, error)
}

func (m *mockFetcher) FetchPage(ctx context.Context, req fetch.PageRequest) (*fetch.PageResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.FetchPageFunc != nil {
		return m.FetchPageFunc(ctx, req)
	}

	n := req.Number()
	if n == m.failAt {
		return nil, &fetch.QueryError{Kind: fetch.KindPageRead, JobID: "job-1", Page: n, Err: errors.New("warehouse unavailable")}
	}
	resp := &fetch.PageResponse{Number: n}
	if n <= len(m.pages) {
		resp.Details = m.pages[n-1]
	}
	if n < len(m.pages) || (m.failAt > n) {
		resp.NextCursor = fmt.Sprintf("cursor-%d", n+1)
	}
	return resp, nil
}

func (m *mockFetcher) fetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockPersister is a function-field fake of BatchPersister.
type mockPersister struct {
	PersistBatchFunc func(ctx context.Context, details []domain.TransactionDetail) (int, error)
}

func (m *mockPersister) PersistBatch(ctx context.Context, details []domain.TransactionDetail) (int, error) {
	if m.PersistBatchFunc != nil {
		return m.PersistBatchFunc(ctx, details)
	}
	return len(details), nil
}

// memoryStore is a concurrency-safe persist.TransactionStore that, like the
// unique constraint, never stores a natural key twice.
type memoryStore struct {
	mu    sync.Mutex
	roots map[string]*domain.Transaction
}

func newMemoryStore() *memoryStore {
	return &memoryStore{roots: map[string]*domain.Transaction{}}
}

func (m *memoryStore) FindExistingIDs(_ context.Context, _ string, ids []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := m.roots[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (m *memoryStore) BulkInsert(_ context.Context, txs []*domain.Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range txs {
		if _, ok := m.roots[t.SourceReferenceTransactionID]; ok {
			continue
		}
		m.roots[t.SourceReferenceTransactionID] = t
		n++
	}
	return n, nil
}

func detail(id string, lines int) domain.TransactionDetail {
	d := domain.TransactionDetail{
		GlobalTransactionID: id,
		BusinessDate:        civil.Date{Year: 2025, Month: time.October, Day: 20},
	}
	for i := 0; i < lines; i++ {
		d.LineItems = append(d.LineItems, domain.LineItemDetail{
			FirstReportedDate: civil.Date{Year: 2025, Month: time.October, Day: 21},
			BusinessOrigin:    domain.BusinessOriginMarketingPromo,
			LineItemID:        fmt.Sprintf("%s-%d", id, i),
			DiscountAmount:    decimal.NewFromFloat(2.5),
			TransactionCode:   domain.TransactionCodeSale,
			ActivityCode:      domain.ActivityCodeSale,
			Store:             "808",
		})
	}
	return d
}

func poolConfig() inmemory.PoolConfig {
	return inmemory.PoolConfig{CoreSize: 4, MaxSize: 8, QueueCapacity: 20, AwaitTermination: 5 * time.Second}
}

func TestRunEndToEnd(t *testing.T) {
	store := newMemoryStore()
	reg := metrics.NewRegistry()
	fetcher := &mockFetcher{pages: [][]domain.TransactionDetail{
		{detail("A", 2), detail("B", 1)},
		{detail("A", 2), detail("C", 3)},
	}}
	jobStore := inmemory.NewStore()

	job := NewJob(fetcher, persist.NewService(store, reg), poolConfig(), jobStore, reg)
	summary, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 4, summary.Fetched)
	assert.Equal(t, 3, summary.Persisted)
	assert.Empty(t, summary.FailedPages)
	assert.NoError(t, summary.PageErrors())
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, fetcher.fetchCalls())

	require.Len(t, store.roots, 3)
	assert.Equal(t, 3, store.roots["C"].LineCount())
	assert.Equal(t, 2, store.roots["A"].PromotionCount())

	pageJobs, err := jobStore.ListJobs(context.Background(), jobs.JobFilter{RunID: summary.RunID})
	require.NoError(t, err)
	require.Len(t, pageJobs, 2)
	for _, pj := range pageJobs {
		assert.Equal(t, jobs.JobStatusCompleted, pj.Status)
		assert.Equal(t, 2, pj.Rows)
	}

	require.Len(t, summary.PageJobs, 2)
	assert.Equal(t, []int{1, 2}, []int{summary.PageJobs[0].PageNumber, summary.PageJobs[1].PageNumber})
	assert.Equal(t, 3, summary.PageJobs[0].Persisted+summary.PageJobs[1].Persisted)

	assert.Equal(t, 4.0, testutil.ToFloat64(reg.DuplicateTransactions)+testutil.ToFloat64(reg.PersistedTransactions))
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.PersistedTransactions))
}

func TestRunIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	fetcher := &mockFetcher{pages: [][]domain.TransactionDetail{{detail("A", 1), detail("B", 1)}}}
	job := NewJob(fetcher, persist.NewService(store, nil), poolConfig(), nil, nil)

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	second, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Persisted)
	assert.Equal(t, 0, second.Persisted)
	assert.Equal(t, 2, second.Fetched)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunFetchesNextPageBeforePreviousIsPersisted(t *testing.T) {
	page2Fetched := make(chan struct{})
	var once sync.Once
	fetcher := &mockFetcher{}
	pages := [][]domain.TransactionDetail{{detail("A", 1)}, {detail("B", 1)}}
	fetcher.FetchPageFunc = func(ctx context.Context, req fetch.PageRequest) (*fetch.PageResponse, error) {
		n := req.Number()
		if n == 2 {
			once.Do(func() { close(page2Fetched) })
		}
		resp := &fetch.PageResponse{Number: n, Details: pages[n-1]}
		if n == 1 {
			resp.NextCursor = "cursor-2"
		}
		return resp, nil
	}

	persister := &mockPersister{
		PersistBatchFunc: func(ctx context.Context, details []domain.TransactionDetail) (int, error) {
			if details[0].GlobalTransactionID != "A" {
				return len(details), nil
			}
			select {
			case <-page2Fetched:
				return len(details), nil
			case <-time.After(2 * time.Second):
				return 0, errors.New("page 2 was not fetched while page 1 was persisting")
			}
		},
	}

	summary, err := NewJob(fetcher, persister, poolConfig(), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.FailedPages)
	assert.Equal(t, 2, summary.Persisted)
}

func TestRunIsolatesPageFailures(t *testing.T) {
	fetcher := &mockFetcher{pages: [][]domain.TransactionDetail{
		{detail("A", 1), detail("B", 1)},
		{detail("C", 1)},
		{detail("D", 1), detail("E", 1), detail("F", 1)},
	}}
	boom := &persist.DatabaseConnectionError{Err: errors.New("connection refused")}
	persister := &mockPersister{
		PersistBatchFunc: func(ctx context.Context, details []domain.TransactionDetail) (int, error) {
			if details[0].GlobalTransactionID == "C" {
				return 0, boom
			}
			return len(details), nil
		},
	}
	reg := metrics.NewRegistry()
	jobStore := inmemory.NewStore()

	summary, err := NewJob(fetcher, persister, poolConfig(), jobStore, reg).Run(context.Background())
	require.NoError(t, err, "a failed page does not fail the run")

	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 6, summary.Fetched)
	assert.Equal(t, 5, summary.Persisted)
	require.Len(t, summary.FailedPages, 1)
	assert.Equal(t, 2, summary.FailedPages[0].Page)
	assert.Equal(t, 1, summary.FailedPages[0].Rows)
	assert.ErrorIs(t, summary.PageErrors(), boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ErrorsTotal.WithLabelValues(metrics.CodeBatchProcessing)))

	failed, err := jobStore.ListJobs(context.Background(), jobs.JobFilter{RunID: summary.RunID, Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].PageNumber)
}

func TestRunFetchErrorDrainsDispatchedPages(t *testing.T) {
	fetcher := &mockFetcher{
		pages:  [][]domain.TransactionDetail{{detail("A", 1)}, {detail("B", 1), detail("C", 1)}},
		failAt: 3,
	}
	var mu sync.Mutex
	var persisted []string
	persister := &mockPersister{
		PersistBatchFunc: func(ctx context.Context, details []domain.TransactionDetail) (int, error) {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			for _, d := range details {
				persisted = append(persisted, d.GlobalTransactionID)
			}
			return len(details), nil
		},
	}
	reg := metrics.NewRegistry()

	summary, err := NewJob(fetcher, persister, poolConfig(), nil, reg).Run(context.Background())
	require.Error(t, err)

	var qerr *fetch.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 3, qerr.Page)

	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.Persisted)
	assert.NotEmpty(t, summary.FetchError)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, persisted)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ErrorsTotal.WithLabelValues(metrics.CodeJobExecution)))
}

func TestRunEmptyFirstPage(t *testing.T) {
	fetcher := &mockFetcher{}
	persister := &mockPersister{
		PersistBatchFunc: func(ctx context.Context, details []domain.TransactionDetail) (int, error) {
			t.Error("nothing should be persisted")
			return 0, nil
		},
	}

	summary, err := NewJob(fetcher, persister, poolConfig(), nil, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Pages)
	assert.Equal(t, 0, summary.Fetched)
	assert.Equal(t, 0, summary.Persisted)
	assert.Equal(t, 1, fetcher.fetchCalls())
}

func TestRunStopsAtEmptyPageEvenWithCursor(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.FetchPageFunc = func(ctx context.Context, req fetch.PageRequest) (*fetch.PageResponse, error) {
		if req.Number() == 1 {
			return &fetch.PageResponse{Number: 1, Details: []domain.TransactionDetail{detail("A", 1)}, NextCursor: "c2"}, nil
		}
		return &fetch.PageResponse{Number: req.Number(), NextCursor: "c3"}, nil
	}

	summary, err := NewJob(fetcher, &mockPersister{}, poolConfig(), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 2, fetcher.fetchCalls())
}

func TestRunFirstPageFailure(t *testing.T) {
	fetcher := &mockFetcher{failAt: 1}

	summary, err := NewJob(fetcher, &mockPersister{}, poolConfig(), nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, summary.Pages)
	assert.Contains(t, summary.FetchError, "warehouse unavailable")
}

func TestRunCallerRunsUnderSaturation(t *testing.T) {
	pages := make([][]domain.TransactionDetail, 6)
	for i := range pages {
		pages[i] = []domain.TransactionDetail{detail(fmt.Sprintf("T%d", i), 1)}
	}
	fetcher := &mockFetcher{pages: pages}
	persister := &mockPersister{
		PersistBatchFunc: func(ctx context.Context, details []domain.TransactionDetail) (int, error) {
			time.Sleep(10 * time.Millisecond)
			return len(details), nil
		},
	}
	jobStore := inmemory.NewStore()
	cfg := inmemory.PoolConfig{CoreSize: 1, MaxSize: 1, QueueCapacity: 1, AwaitTermination: 5 * time.Second}

	summary, err := NewJob(fetcher, persister, cfg, jobStore, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Persisted)

	all, err := jobStore.ListJobs(context.Background(), jobs.JobFilter{RunID: summary.RunID})
	require.NoError(t, err)
	callerRan := 0
	for _, pj := range all {
		if pj.CallerRan {
			callerRan++
		}
	}
	assert.Positive(t, callerRan, "saturated pool runs pages on the fetch goroutine")
	assert.Equal(t, int64(callerRan), summary.CallerRuns)
	assert.Len(t, summary.PageJobs, 6)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &mockFetcher{pages: [][]domain.TransactionDetail{{detail("A", 1)}}}
	_, err := NewJob(fetcher, &mockPersister{}, poolConfig(), nil, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fetcher.fetchCalls())
}

func TestRunCancelledWhileDrainingCountsFinishedPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	store := newMemoryStore()
	fetcher := &mockFetcher{pages: [][]domain.TransactionDetail{{detail("A", 1), detail("B", 2)}}}
	persister := &mockPersister{
		PersistBatchFunc: func(ctx context.Context, details []domain.TransactionDetail) (int, error) {
			close(started)
			<-release
			return persist.NewService(store, nil).PersistBatch(ctx, details)
		},
	}

	type outcome struct {
		summary *Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := NewJob(fetcher, persister, poolConfig(), nil, nil).Run(ctx)
		done <- outcome{summary, err}
	}()

	<-started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	require.NoError(t, out.err)
	assert.Len(t, store.roots, 2)
	assert.Equal(t, 2, out.summary.Persisted)
	assert.Empty(t, out.summary.FailedPages)
	assert.NoError(t, out.summary.PageErrors())
}

func TestRunReportsPagesStillRunningAfterAwaitTermination(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fetcher := &mockFetcher{pages: [][]domain.TransactionDetail{{detail("A", 1)}}}
	persister := &mockPersister{
		PersistBatchFunc: func(ctx context.Context, details []domain.TransactionDetail) (int, error) {
			<-release
			return len(details), nil
		},
	}
	cfg := poolConfig()
	cfg.AwaitTermination = 20 * time.Millisecond

	summary, err := NewJob(fetcher, persister, cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Persisted)
	require.Len(t, summary.FailedPages, 1)
	assert.ErrorIs(t, summary.PageErrors(), errPageAbandoned)
}
