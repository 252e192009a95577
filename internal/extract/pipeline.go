package extract

import (
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/models"
)

// Result summarizes one batch run through the pipeline.
type Result struct {
	Accepted   []models.Record
	Duplicates int
	Rejected   int
}

// Pipeline composes normalization, validity checks, and duplicate
// suppression over a batch of raw fragments.
type Pipeline struct {
	dedup  *Deduplicator
	logger arbor.ILogger
}

func NewPipeline(logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		dedup:  NewDeduplicator(),
		logger: logger,
	}
}

// Process normalizes each fragment, drops invalid records, and suppresses
// duplicates against both the stored history and records accepted earlier
// in the same batch. Fragments that fail to parse are logged and skipped
// without aborting the batch.
func (p *Pipeline) Process(fragments []models.Fragment, history []models.Record) Result {
	result := Result{Accepted: make([]models.Record, 0, len(fragments))}

	for i := range fragments {
		record, ok, err := Normalize(fragments[i])
		if err != nil {
			var parseErr *models.ParseError
			if errors.As(err, &parseErr) {
				p.logger.Warn().
					Int("fragment", parseErr.Index).
					Err(err).
					Msg("Skipping unparseable fragment")
			} else {
				p.logger.Warn().
					Int("fragment", fragments[i].Index).
					Err(err).
					Msg("Skipping fragment")
			}
			result.Rejected++
			continue
		}
		if !ok {
			result.Rejected++
			continue
		}

		if p.dedup.IsDuplicate(record, history) || p.dedup.IsDuplicate(record, result.Accepted) {
			p.logger.Debug().
				Str("make", record.Make).
				Str("model", record.Model).
				Str("date_of_sale", record.DateOfSale).
				Msg("Suppressing duplicate record")
			result.Duplicates++
			continue
		}

		result.Accepted = append(result.Accepted, record)
	}

	return result
}
