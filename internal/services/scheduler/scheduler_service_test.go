package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/interfaces"
	"github.com/ternarybob/subhasta/internal/jobs"
	"github.com/ternarybob/subhasta/internal/models"
)

type noopFetcher struct{ source models.SourceType }

func (f *noopFetcher) Source() models.SourceType { return f.source }

func (f *noopFetcher) Fetch(ctx context.Context, opts map[string]interface{}, page int) ([]models.Fragment, error) {
	return nil, nil
}

type noopDatasetStore struct{ mu sync.Mutex }

func (s *noopDatasetStore) History(source models.SourceType) ([]models.Record, error) {
	return nil, nil
}

func (s *noopDatasetStore) Append(source models.SourceType, records []models.Record) (string, error) {
	return string(source) + "_results.csv", nil
}

func (s *noopDatasetStore) Path(name string) (string, error) {
	return "", models.ErrNotFound
}

type noopResultStore struct{}

func (s *noopResultStore) SaveResults(ctx context.Context, set *models.ResultSet) error { return nil }

func (s *noopResultStore) GetResults(ctx context.Context, jobID string) (*models.ResultSet, error) {
	return nil, models.ErrNotFound
}

func (s *noopResultStore) DeleteResults(ctx context.Context, jobID string) error { return nil }

func (s *noopResultStore) Close() error { return nil }

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	registry := jobs.NewRegistry(logger)
	fetchers := map[models.SourceType]interfaces.Fetcher{
		models.SourceClassicValuer: &noopFetcher{source: models.SourceClassicValuer},
	}
	runner := jobs.NewRunner(registry, fetchers, &noopDatasetStore{}, &noopResultStore{}, 1, 10, logger)
	return NewService(runner, logger)
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		source   models.SourceType
		schedule string
		wantErr  bool
	}{
		{"valid daily schedule", models.SourceClassicValuer, "0 6 * * *", false},
		{"valid interval schedule", models.SourceClassicCom, "*/15 * * * *", false},
		{"unknown source", models.SourceType("ebay"), "0 6 * * *", true},
		{"malformed cron", models.SourceClassicValuer, "not a cron", true},
		{"every minute rejected", models.SourceClassicValuer, "* * * * *", true},
		{"sub five minute interval rejected", models.SourceClassicValuer, "*/2 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			err := svc.Register(tt.source, tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, svc.Entries())
			} else {
				assert.NoError(t, err)
				assert.Len(t, svc.Entries(), 1)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.Register(models.SourceClassicValuer, "0 6 * * *"))
	err := svc.Register(models.SourceClassicValuer, "0 6 * * *")
	assert.Error(t, err)
	assert.Len(t, svc.Entries(), 1)
}

func TestEntriesSnapshot(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.Register(models.SourceClassicValuer, "0 6 * * *"))
	require.NoError(t, svc.Register(models.SourceClassicCom, "30 18 * * *"))

	entries := svc.Entries()
	assert.Equal(t, "0 6 * * *", entries["classic_valuer@0 6 * * *"])
	assert.Equal(t, "30 18 * * *", entries["classic_com@30 18 * * *"])

	// mutating the snapshot must not affect the service
	delete(entries, "classic_valuer@0 6 * * *")
	assert.Len(t, svc.Entries(), 2)
}

func TestStartStop(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Register(models.SourceClassicValuer, "0 6 * * *"))

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start())

	svc.Stop()
	svc.Stop()
}
