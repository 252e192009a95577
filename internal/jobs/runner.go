package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/common"
	"github.com/ternarybob/subhasta/internal/extract"
	"github.com/ternarybob/subhasta/internal/interfaces"
	"github.com/ternarybob/subhasta/internal/models"
)

// jobTimeout bounds a single pipeline run end to end
const jobTimeout = 15 * time.Minute

// maxFetchPages is a hard safety cap; fetchers signal their own end of
// pagination by returning an empty batch.
const maxFetchPages = 100

// Runner executes scrape jobs asynchronously. Submit returns as soon as
// the job is registered; the pipeline runs on a recovered goroutine and
// reports every state change through the registry. A bounded slot pool
// limits concurrent runs, and a per-source lock serializes the dataset
// read-then-append so two jobs for the same source cannot race the
// duplicate check.
type Runner struct {
	registry *Registry
	fetchers map[models.SourceType]interfaces.Fetcher
	datasets interfaces.DatasetStore
	results  interfaces.ResultStore
	pipeline *extract.Pipeline
	logger   arbor.ILogger

	previewSize int
	slots       chan struct{}

	lockMu      sync.Mutex
	sourceLocks map[models.SourceType]*sync.Mutex
}

func NewRunner(registry *Registry, fetchers map[models.SourceType]interfaces.Fetcher, datasets interfaces.DatasetStore, results interfaces.ResultStore, maxConcurrent, previewSize int, logger arbor.ILogger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		registry:    registry,
		fetchers:    fetchers,
		datasets:    datasets,
		results:     results,
		pipeline:    extract.NewPipeline(logger),
		logger:      logger,
		previewSize: previewSize,
		slots:       make(chan struct{}, maxConcurrent),
		sourceLocks: make(map[models.SourceType]*sync.Mutex),
	}
}

// Submit registers a pending job and starts its pipeline in the
// background. The returned job snapshot is the pending state; callers
// poll or subscribe for updates.
func (r *Runner) Submit(source models.SourceType, options map[string]interface{}) (*models.Job, error) {
	if _, ok := r.fetchers[source]; !ok {
		return nil, models.ErrInvalidSource
	}

	job, err := r.registry.Create(source, options)
	if err != nil {
		return nil, err
	}

	jobID := job.ID
	common.SafeGo(r.logger, "job-"+jobID, func() {
		r.slots <- struct{}{}
		defer func() { <-r.slots }()
		// a panicking run must still reach a terminal state
		defer func() {
			if rec := recover(); rec != nil {
				r.fail(jobID, source, fmt.Errorf("panic: %v", rec))
			}
		}()
		r.run(jobID)
	})

	return job, nil
}

// run drives one job through fetch, extract, deduplicate, and persist.
// Every checkpoint goes through update; if the job has been deleted
// mid-run the update reports not found and the run is abandoned.
func (r *Runner) run(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	job, err := r.registry.Get(jobID)
	if err != nil {
		r.logger.Debug().Str("job_id", jobID).Msg("Job gone before start, abandoning")
		return
	}
	source := job.Source
	options := job.Options

	fetcher := r.fetchers[source]

	if !r.update(jobID, func(j *models.Job) {
		j.MarkStarted()
		j.Progress = 10
		j.Message = fmt.Sprintf("Initializing %s scraper...", source)
	}) {
		return
	}

	fragments, err := r.fetchAll(ctx, jobID, fetcher, options)
	if err != nil {
		r.fail(jobID, source, err)
		return
	}

	if !r.update(jobID, func(j *models.Job) {
		j.Progress = 60
		j.Message = fmt.Sprintf("Extracting records from %d listings...", len(fragments))
	}) {
		return
	}

	lock := r.sourceLock(source)
	lock.Lock()

	history, err := r.datasets.History(source)
	if err != nil {
		lock.Unlock()
		r.fail(jobID, source, err)
		return
	}

	result := r.pipeline.Process(fragments, history)

	if !r.update(jobID, func(j *models.Job) {
		j.Progress = 80
		j.Message = fmt.Sprintf("Saving %d new records...", len(result.Accepted))
	}) {
		lock.Unlock()
		return
	}

	outputFile, err := r.datasets.Append(source, result.Accepted)
	lock.Unlock()
	if err != nil {
		r.fail(jobID, source, err)
		return
	}

	resultSet := &models.ResultSet{
		JobID:   jobID,
		Source:  source,
		Records: result.Accepted,
	}
	if err := r.results.SaveResults(ctx, resultSet); err != nil {
		r.fail(jobID, source, err)
		return
	}

	preview := result.Accepted
	if len(preview) > r.previewSize {
		preview = preview[:r.previewSize]
	}

	r.update(jobID, func(j *models.Job) {
		j.TotalRecords = len(result.Accepted)
		j.Preview = append([]models.Record(nil), preview...)
		j.OutputFile = outputFile
		j.MarkCompleted(fmt.Sprintf("Scraping completed. Found %d new records (%d duplicates, %d rejected).",
			len(result.Accepted), result.Duplicates, result.Rejected))
	})

	r.logger.Info().
		Str("job_id", jobID).
		Str("source", string(source)).
		Int("records", len(result.Accepted)).
		Int("duplicates", result.Duplicates).
		Int("rejected", result.Rejected).
		Msg("Job completed")
}

// fetchAll pages through the fetcher until it signals exhaustion with an
// empty batch. Progress climbs from 10 toward 60 as pages arrive.
func (r *Runner) fetchAll(ctx context.Context, jobID string, fetcher interfaces.Fetcher, options map[string]interface{}) ([]models.Fragment, error) {
	var fragments []models.Fragment

	for page := 1; page <= maxFetchPages; page++ {
		if !r.update(jobID, func(j *models.Job) {
			progress := 10 + page*10
			if progress > 50 {
				progress = 50
			}
			j.Progress = progress
			j.Message = fmt.Sprintf("Fetching page %d...", page)
		}) {
			return nil, context.Canceled
		}

		batch, err := fetcher.Fetch(ctx, options, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		// Fragment indexes are per-job, not per-page
		for i := range batch {
			batch[i].Index = len(fragments)
			fragments = append(fragments, batch[i])
		}
	}

	return fragments, nil
}

// update applies a registry mutation and reports whether the run should
// continue. A not-found result means the job was deleted; the run stops
// without writing anything further.
func (r *Runner) update(jobID string, fn func(*models.Job)) bool {
	if _, err := r.registry.Update(jobID, fn); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			r.logger.Debug().Str("job_id", jobID).Msg("Job deleted mid-run, abandoning")
			return false
		}
		r.logger.Warn().Str("job_id", jobID).Err(err).Msg("Job update failed")
		return false
	}
	return true
}

func (r *Runner) fail(jobID string, source models.SourceType, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	r.logger.Error().
		Str("job_id", jobID).
		Str("source", string(source)).
		Err(err).
		Msg("Job failed")
	r.update(jobID, func(j *models.Job) {
		j.MarkFailed(fmt.Sprintf("Scraping failed: %v", err))
	})
}

func (r *Runner) sourceLock(source models.SourceType) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.sourceLocks[source]
	if !ok {
		lock = &sync.Mutex{}
		r.sourceLocks[source] = lock
	}
	return lock
}
