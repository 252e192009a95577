package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/common"
	"github.com/ternarybob/subhasta/internal/jobs"
	"github.com/ternarybob/subhasta/internal/models"
)

// scrapeEntry tracks one registered recurring scrape
type scrapeEntry struct {
	source   models.SourceType
	schedule string
	cronID   cron.EntryID
	lastRun  *time.Time
}

// Service submits recurring scrape jobs on cron schedules. Entries come
// from configuration at startup; the runner's concurrency slots keep an
// overdue schedule from piling up browser sessions.
type Service struct {
	runner  *jobs.Runner
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	entries map[string]*scrapeEntry
	running bool
}

// NewService creates a new scheduler service
func NewService(runner *jobs.Runner, logger arbor.ILogger) *Service {
	return &Service{
		runner:  runner,
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]*scrapeEntry),
	}
}

// Register adds a recurring scrape for the given source. Schedules are
// validated against the same floor as configuration loading.
func (s *Service) Register(source models.SourceType, schedule string) error {
	if !models.ValidSource(source) {
		return models.ErrInvalidSource
	}
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule for %s: %w", source, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(source) + "@" + schedule
	if _, exists := s.entries[key]; exists {
		return fmt.Errorf("schedule already registered for %s", source)
	}

	entry := &scrapeEntry{source: source, schedule: schedule}
	cronID, err := s.cron.AddFunc(schedule, func() { s.runScheduledScrape(entry) })
	if err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}
	entry.cronID = cronID
	s.entries[key] = entry

	s.logger.Info().
		Str("source", string(source)).
		Str("schedule", schedule).
		Msg("Registered scheduled scrape")

	return nil
}

// Start begins the cron loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("entries", len(s.entries)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for in-flight submissions
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
}

// runScheduledScrape submits one job with the source defaults
func (s *Service) runScheduledScrape(entry *scrapeEntry) {
	job, err := s.runner.Submit(entry.source, nil)
	if err != nil {
		s.logger.Warn().
			Str("source", string(entry.source)).
			Err(err).
			Msg("Scheduled scrape submission failed")
		return
	}

	now := time.Now()
	s.mu.Lock()
	entry.lastRun = &now
	s.mu.Unlock()

	s.logger.Info().
		Str("source", string(entry.source)).
		Str("job_id", job.ID).
		Msg("Scheduled scrape submitted")
}

// Entries returns a snapshot of registered schedules keyed by source@schedule
func (s *Service) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.entries))
	for key, entry := range s.entries {
		out[key] = entry.schedule
	}
	return out
}
