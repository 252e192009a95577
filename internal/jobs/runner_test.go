package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/interfaces"
	"github.com/ternarybob/subhasta/internal/models"
)

// stubFetcher serves a fixed set of pages, then signals exhaustion
type stubFetcher struct {
	source models.SourceType
	pages  [][]models.Fragment
	err    error
}

func (f *stubFetcher) Source() models.SourceType { return f.source }

func (f *stubFetcher) Fetch(ctx context.Context, opts map[string]interface{}, page int) ([]models.Fragment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if page > len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

// funcFetcher delegates to a closure, for tests that need to interfere
// with the run from inside a fetch
type funcFetcher struct {
	source models.SourceType
	fetch  func(page int) ([]models.Fragment, error)
}

func (f *funcFetcher) Source() models.SourceType { return f.source }

func (f *funcFetcher) Fetch(ctx context.Context, opts map[string]interface{}, page int) ([]models.Fragment, error) {
	return f.fetch(page)
}

// memDatasetStore is an in-memory DatasetStore for runner tests
type memDatasetStore struct {
	mu      sync.Mutex
	history map[models.SourceType][]models.Record
	appends int
}

func newMemDatasetStore() *memDatasetStore {
	return &memDatasetStore{history: make(map[models.SourceType][]models.Record)}
}

func (s *memDatasetStore) History(source models.SourceType) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Record(nil), s.history[source]...), nil
}

func (s *memDatasetStore) Append(source models.SourceType, records []models.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[source] = append(s.history[source], records...)
	s.appends++
	return fmt.Sprintf("%s_results.csv", source), nil
}

func (s *memDatasetStore) Path(name string) (string, error) {
	return name, nil
}

func (s *memDatasetStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

// memResultStore is an in-memory ResultStore for runner tests
type memResultStore struct {
	mu   sync.Mutex
	sets map[string]*models.ResultSet
}

func newMemResultStore() *memResultStore {
	return &memResultStore{sets: make(map[string]*models.ResultSet)}
}

func (s *memResultStore) SaveResults(ctx context.Context, set *models.ResultSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.JobID] = set
	return nil
}

func (s *memResultStore) GetResults(ctx context.Context, jobID string) (*models.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return set, nil
}

func (s *memResultStore) DeleteResults(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, jobID)
	return nil
}

func (s *memResultStore) Close() error { return nil }

func fragment(text string) models.Fragment {
	return models.Fragment{RawText: text}
}

func waitForTerminal(t *testing.T, registry *Registry, jobID string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := registry.Get(jobID)
		if err == nil && job.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func newTestRunner(fetcher interfaces.Fetcher, datasets interfaces.DatasetStore, results interfaces.ResultStore) (*Runner, *Registry) {
	logger := arbor.NewLogger()
	registry := NewRegistry(logger)
	fetchers := map[models.SourceType]interfaces.Fetcher{
		fetcher.Source(): fetcher,
	}
	return NewRunner(registry, fetchers, datasets, results, 2, 10, logger), registry
}

func TestRunnerCompletesJob(t *testing.T) {
	fetcher := &stubFetcher{
		source: models.SourceClassicValuer,
		pages: [][]models.Fragment{
			{
				fragment("1962 Ferrari 250 GT Sold for £2,500,000 15 Jul 2024"),
				fragment("1972 Porsche 911 Carrera Sold for £85,000 01 Mar 2024"),
			},
		},
	}
	datasets := newMemDatasetStore()
	results := newMemResultStore()
	runner, registry := newTestRunner(fetcher, datasets, results)

	job, err := runner.Submit(models.SourceClassicValuer, nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	done := waitForTerminal(t, registry, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 2, done.TotalRecords)
	assert.Len(t, done.Preview, 2)
	assert.Equal(t, "classic_valuer_results.csv", done.OutputFile)
	require.NotNil(t, done.CompletedAt)

	set, err := results.GetResults(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, set.Records, 2)

	history, err := datasets.History(models.SourceClassicValuer)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRunnerDeduplicatesAgainstHistory(t *testing.T) {
	fetcher := &stubFetcher{
		source: models.SourceClassicValuer,
		pages: [][]models.Fragment{
			{fragment("1962 Ferrari 250 GT Sold for £2,520,000 15 Jul 2024")},
		},
	}
	datasets := newMemDatasetStore()
	datasets.history[models.SourceClassicValuer] = []models.Record{
		{Make: "Ferrari", Model: "250 GT", DateOfSale: "15/07/2024", SoldPrice: "£2,500,000"},
	}
	results := newMemResultStore()
	runner, registry := newTestRunner(fetcher, datasets, results)

	job, err := runner.Submit(models.SourceClassicValuer, nil)
	require.NoError(t, err)

	done := waitForTerminal(t, registry, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 0, done.TotalRecords)
	assert.Empty(t, done.Preview)

	history, _ := datasets.History(models.SourceClassicValuer)
	assert.Len(t, history, 1)
}

func TestRunnerFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{
		source: models.SourceClassicValuer,
		err:    &models.FetchError{Source: models.SourceClassicValuer, Page: 1, Err: errors.New("browser crashed")},
	}
	runner, registry := newTestRunner(fetcher, newMemDatasetStore(), newMemResultStore())

	job, err := runner.Submit(models.SourceClassicValuer, nil)
	require.NoError(t, err)

	done := waitForTerminal(t, registry, job.ID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.Message, "Scraping failed")
	assert.Less(t, done.Progress, 100)
	require.NotNil(t, done.CompletedAt)
}

func TestRunnerInvalidSource(t *testing.T) {
	runner, registry := newTestRunner(&stubFetcher{source: models.SourceClassicValuer}, newMemDatasetStore(), newMemResultStore())

	_, err := runner.Submit("ebay", nil)
	assert.ErrorIs(t, err, models.ErrInvalidSource)
	assert.Equal(t, 0, registry.Count())
}

func TestRunnerPreviewIsBounded(t *testing.T) {
	var frags []models.Fragment
	for i := 0; i < 15; i++ {
		frags = append(frags, fragment(fmt.Sprintf("19%02d Porsche 911 model%d Sold for £%d0,000 01 Mar 2024", 50+i, i, i+1)))
	}
	fetcher := &stubFetcher{source: models.SourceClassicValuer, pages: [][]models.Fragment{frags}}
	runner, registry := newTestRunner(fetcher, newMemDatasetStore(), newMemResultStore())

	job, err := runner.Submit(models.SourceClassicValuer, nil)
	require.NoError(t, err)

	done := waitForTerminal(t, registry, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 15, done.TotalRecords)
	assert.Len(t, done.Preview, 10)
}

func TestRunnerMultiPageFetch(t *testing.T) {
	fetcher := &stubFetcher{
		source: models.SourceClassicValuer,
		pages: [][]models.Fragment{
			{fragment("1962 Ferrari 250 GT Sold for £2,500,000 15 Jul 2024")},
			{fragment("1972 Porsche 911 Carrera Sold for £85,000 01 Mar 2024")},
		},
	}
	runner, registry := newTestRunner(fetcher, newMemDatasetStore(), newMemResultStore())

	job, err := runner.Submit(models.SourceClassicValuer, nil)
	require.NoError(t, err)

	done := waitForTerminal(t, registry, job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 2, done.TotalRecords)
}

func TestRunnerPanicMarksJobFailed(t *testing.T) {
	fetcher := &funcFetcher{
		source: models.SourceClassicValuer,
		fetch: func(page int) ([]models.Fragment, error) {
			panic("selector cache corrupted")
		},
	}
	runner, registry := newTestRunner(fetcher, newMemDatasetStore(), newMemResultStore())

	job, err := runner.Submit(models.SourceClassicValuer, nil)
	require.NoError(t, err)

	done := waitForTerminal(t, registry, job.ID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.Message, "panic")
	assert.Less(t, done.Progress, 100)
	require.NotNil(t, done.CompletedAt)
}

func TestRunnerAbandonsMidRunDelete(t *testing.T) {
	logger := arbor.NewLogger()
	registry := NewRegistry(logger)
	datasets := newMemDatasetStore()
	results := newMemResultStore()

	idCh := make(chan string, 1)
	deleted := make(chan struct{})
	fetcher := &funcFetcher{
		source: models.SourceClassicValuer,
		fetch: func(page int) ([]models.Fragment, error) {
			if page == 1 {
				assert.NoError(t, registry.Delete(<-idCh))
				close(deleted)
				return []models.Fragment{fragment("1962 Ferrari 250 GT Sold for £2,500,000 15 Jul 2024")}, nil
			}
			return []models.Fragment{fragment("1972 Porsche 911 Carrera Sold for £85,000 01 Mar 2024")}, nil
		},
	}
	fetchers := map[models.SourceType]interfaces.Fetcher{models.SourceClassicValuer: fetcher}
	runner := NewRunner(registry, fetchers, datasets, results, 2, 10, logger)

	job, err := runner.Submit(models.SourceClassicValuer, nil)
	require.NoError(t, err)
	idCh <- job.ID

	<-deleted

	// the abandoned run must never persist anything for the deleted job
	assert.Never(t, func() bool { return datasets.appendCount() > 0 }, 500*time.Millisecond, 20*time.Millisecond)
	_, err = registry.Get(job.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = results.GetResults(context.Background(), job.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
