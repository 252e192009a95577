package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/common"
	"github.com/ternarybob/subhasta/internal/fetch"
	"github.com/ternarybob/subhasta/internal/handlers"
	"github.com/ternarybob/subhasta/internal/interfaces"
	"github.com/ternarybob/subhasta/internal/jobs"
	"github.com/ternarybob/subhasta/internal/models"
	"github.com/ternarybob/subhasta/internal/services/scheduler"
	badgerstore "github.com/ternarybob/subhasta/internal/storage/badger"
	"github.com/ternarybob/subhasta/internal/storage/csvfile"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	BadgerDB     *badgerstore.BadgerDB
	ResultStore  interfaces.ResultStore
	DatasetStore interfaces.DatasetStore

	// Scraping
	BrowserPool *fetch.BrowserPool
	Registry    *jobs.Registry
	Runner      *jobs.Runner
	Scheduler   *scheduler.Service

	// HTTP
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
	WSHandler  *handlers.WebSocketHandler
	UIHandler  *handlers.UIHandler
}

// New wires the application together from configuration
func New(config *common.Config) (*App, error) {
	logger := common.GetLogger()
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    config,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := a.initStorage(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initScraping(); err != nil {
		cancel()
		a.closeStorage()
		return nil, err
	}
	a.initHandlers()

	logger.Info().Msg("Application initialized")
	return a, nil
}

func (a *App) initStorage() error {
	db, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize result store: %w", err)
	}
	a.BadgerDB = db
	a.BadgerDB.StartGC(a.ctx)
	a.ResultStore = badgerstore.NewResultStorage(db, a.Logger)

	datasets, err := csvfile.NewDatasetStorage(a.Config.Storage.Dataset.Dir, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dataset store: %w", err)
	}
	a.DatasetStore = datasets

	return nil
}

func (a *App) initScraping() error {
	requestTimeout, err := time.ParseDuration(a.Config.Browser.RequestTimeout)
	if err != nil || requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	pageDelay, err := time.ParseDuration(a.Config.Browser.PageDelay)
	if err != nil || pageDelay <= 0 {
		pageDelay = 3 * time.Second
	}

	a.BrowserPool = fetch.NewBrowserPool(fetch.BrowserConfig{
		PoolSize:       a.Config.Browser.PoolSize,
		Headless:       a.Config.Browser.Headless,
		UserAgent:      a.Config.Browser.UserAgent,
		RequestTimeout: requestTimeout,
		PageDelay:      pageDelay,
	}, a.Logger)

	if err := a.BrowserPool.Init(); err != nil {
		// jobs submitted without a browser fail at fetch time with a
		// clear error; the API itself stays up
		a.Logger.Warn().Err(err).Msg("Browser pool unavailable, fetches will fail until Chrome is present")
	}

	fetchers := map[models.SourceType]interfaces.Fetcher{
		models.SourceClassicValuer: fetch.NewClassicValuerFetcher(a.BrowserPool, a.Logger),
		models.SourceClassicCom:    fetch.NewClassicComFetcher(a.BrowserPool, a.Logger),
	}

	a.Registry = jobs.NewRegistry(a.Logger)
	a.Runner = jobs.NewRunner(
		a.Registry,
		fetchers,
		a.DatasetStore,
		a.ResultStore,
		a.Config.Scraper.MaxConcurrentJobs,
		a.Config.Scraper.PreviewSize,
		a.Logger,
	)

	a.Scheduler = scheduler.NewService(a.Runner, a.Logger)
	if a.Config.Schedule.Enabled {
		for _, entry := range a.Config.Schedule.Entries {
			if err := a.Scheduler.Register(models.SourceType(entry.Source), entry.Schedule); err != nil {
				return fmt.Errorf("invalid schedule entry: %w", err)
			}
		}
		if err := a.Scheduler.Start(); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) initHandlers() {
	statusInterval, err := time.ParseDuration(a.Config.WebSocket.StatusInterval)
	if err != nil || statusInterval <= 0 {
		statusInterval = 2 * time.Second
	}

	a.APIHandler = handlers.NewAPIHandler()
	a.JobHandler = handlers.NewJobHandler(a.Runner, a.Registry, a.ResultStore, a.DatasetStore, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Registry, statusInterval, a.Logger)
	a.UIHandler = handlers.NewUIHandler(a.Logger)

	// push a snapshot on every job change; the handler's throttle
	// collapses bursts of progress updates
	a.Registry.SetNotify(a.WSHandler.Broadcast)
	a.WSHandler.Start(a.ctx)
}

func (a *App) closeStorage() {
	if a.ResultStore != nil {
		if err := a.ResultStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close result store")
		}
	}
}

// Close releases all application resources
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	a.cancelCtx()

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.BrowserPool != nil {
		if err := a.BrowserPool.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser pool shutdown failed")
		}
	}
	a.closeStorage()

	a.Logger.Info().Msg("Application shut down")
	return nil
}
