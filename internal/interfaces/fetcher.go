package interfaces

import (
	"context"

	"github.com/ternarybob/subhasta/internal/models"
)

// Fetcher is the only capability the core requires from the
// browser-automation layer: produce raw fragments for one page of one
// source. The core is agnostic to how fragments are obtained; failures
// surface as *models.FetchError and fail the whole job.
type Fetcher interface {
	// Source returns the tag this fetcher serves
	Source() models.SourceType

	// Fetch returns the raw fragments for the given page (1-based).
	// An empty slice with nil error means the source has no more pages.
	Fetch(ctx context.Context, opts map[string]interface{}, page int) ([]models.Fragment, error)
}
