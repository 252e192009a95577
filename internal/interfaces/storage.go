package interfaces

import (
	"context"

	"github.com/ternarybob/subhasta/internal/models"
)

// DatasetStore is the append-only accumulated dataset for a source: the
// deduplication baseline. History is read in full before accepting new
// records and accepted output is appended, never mutated or reordered.
// Implementations must serialize read-then-append per source.
type DatasetStore interface {
	// History returns all previously accepted records for a source,
	// in append order. A missing dataset is an empty history, not an error.
	History(source models.SourceType) ([]models.Record, error)

	// Append adds accepted records to the source's dataset and returns the
	// opaque output reference (file path) for the job.
	Append(source models.SourceType, records []models.Record) (string, error)

	// Path resolves an output reference back to a readable file path,
	// rejecting references outside the dataset directory.
	Path(name string) (string, error)
}

// ResultStore persists the full accepted record set of a completed job,
// keyed by job ID. Released when the job is deleted.
type ResultStore interface {
	SaveResults(ctx context.Context, set *models.ResultSet) error
	GetResults(ctx context.Context, jobID string) (*models.ResultSet, error)
	DeleteResults(ctx context.Context, jobID string) error
	Close() error
}
