package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/subhasta/internal/interfaces"
	"github.com/ternarybob/subhasta/internal/models"
)

// ResultStorage persists full job result sets in Badger, keyed by job ID
type ResultStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.ResultStore = (*ResultStorage)(nil)

// NewResultStorage creates a new ResultStorage instance
func NewResultStorage(db *BadgerDB, logger arbor.ILogger) *ResultStorage {
	return &ResultStorage{
		db:     db,
		logger: logger,
	}
}

// SaveResults upserts the full record set for a job
func (s *ResultStorage) SaveResults(ctx context.Context, set *models.ResultSet) error {
	if set == nil || set.JobID == "" {
		return fmt.Errorf("result set requires a job ID")
	}

	if err := s.db.Store().Upsert(set.JobID, set); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	s.logger.Debug().
		Str("job_id", set.JobID).
		Int("records", len(set.Records)).
		Msg("Saved job results")
	return nil
}

// GetResults retrieves the record set for a job, or models.ErrNotFound
func (s *ResultStorage) GetResults(ctx context.Context, jobID string) (*models.ResultSet, error) {
	var set models.ResultSet
	err := s.db.Store().Get(jobID, &set)
	if err == badgerhold.ErrNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	return &set, nil
}

// DeleteResults removes the record set for a job. Deleting results that
// were never stored is not an error.
func (s *ResultStorage) DeleteResults(ctx context.Context, jobID string) error {
	err := s.db.Store().Delete(jobID, &models.ResultSet{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete results: %w", err)
	}

	s.logger.Debug().Str("job_id", jobID).Msg("Deleted job results")
	return nil
}

// Close closes the underlying database connection
func (s *ResultStorage) Close() error {
	return s.db.Close()
}
