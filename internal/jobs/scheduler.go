package jobs

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"

	"scantrail/internal/config"
	"scantrail/internal/pkg/geo"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	reconciler     *ReconcilerJob
	geoLiteUpdater *GeoLiteUpdaterJob

	// Tickers for each job type
	reconcilerTicker *time.Ticker
	geoLiteTicker    *time.Ticker
}

func NewScheduler(dbManager cartridge.DBManager, resolver *geo.Resolver, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	// Initialize job instances
	s.reconciler = NewReconcilerJob(dbManager, logger)
	s.geoLiteUpdater = NewGeoLiteUpdaterJob(dbManager, resolver, logger, cfg)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	s.startReconcilerJob()
	s.startGeoLiteUpdateJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startReconcilerJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting scan counter reconciliation job", slog.Duration("interval", interval))
	s.reconcilerTicker = time.NewTicker(interval)

	go func() {
		// Run initial execution
		s.logger.Info("Running initial scan counter reconciliation...")
		s.executeJobSafely("reconciler", s.reconciler.Run)

		for {
			select {
			case <-s.reconcilerTicker.C:
				s.executeJobSafely("reconciler", s.reconciler.Run)
			case <-s.ctx.Done():
				s.logger.Info("Scan counter reconciliation job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startGeoLiteUpdateJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting GeoLite update job", slog.Duration("interval", interval))
	s.geoLiteTicker = time.NewTicker(interval)

	go func() {
		// Run initial check
		if err := s.geoLiteUpdater.Run(); err != nil {
			s.logger.Error("Error in initial GeoLite update job", slog.Any("error", err))
		}

		for {
			select {
			case <-s.geoLiteTicker.C:
				if err := s.geoLiteUpdater.Run(); err != nil {
					s.logger.Error("Error in GeoLite update job", slog.Any("error", err))
				}
			case <-s.ctx.Done():
				s.logger.Info("GeoLite update job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.reconcilerTicker != nil {
		s.reconcilerTicker.Stop()
	}
	if s.geoLiteTicker != nil {
		s.geoLiteTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// ReconcileNow allows manual triggering of a reconciliation pass
func (s *Scheduler) ReconcileNow() error {
	if !s.enabled {
		return nil
	}
	return s.reconciler.Run()
}
