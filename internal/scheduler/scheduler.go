package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"estatehub/server/config"
	"estatehub/server/internal/geocoding"
	"estatehub/server/internal/metrics"
	"estatehub/server/internal/models"
)

const (
	// Leads still NEW after this long show up in the digest
	staleLeadAge = 48 * time.Hour

	geocodeBatchSize = 100
)

// Job names, also used as metric labels
const (
	JobExpireListings = "expire_listings"
	JobGeocode        = "geocode"
	JobStaleLeads     = "stale_leads"
)

type Store interface {
	geocoding.Store
	ArchiveExpiredListings(ctx context.Context, now time.Time) (int64, error)
	StaleLeads(ctx context.Context, cutoff time.Time) ([]models.Lead, error)
}

type Geocoder interface {
	Backfill(ctx context.Context, store geocoding.Store, limit int) (int, error)
}

type Notifier interface {
	NotifyStaleLeads(ctx context.Context, leads []models.Lead, now time.Time) error
}

// Scheduler runs the periodic maintenance jobs. Jobs never overlap.
type Scheduler struct {
	cron     *cron.Cron
	store    Store
	geocoder Geocoder
	notifier Notifier
	logger   *logrus.Logger
	jobMutex sync.Mutex
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers the configured jobs. A nil geocoder disables the
// backfill and a nil notifier disables the stale lead digest.
func NewScheduler(cfg config.SchedulerConfig, store Store, geocoder Geocoder, notifier Notifier, logger *logrus.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cron.PrintfLogger(logger))),
		store:    store,
		geocoder: geocoder,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		ctx:      ctx,
		cancel:   cancel,
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
		on   bool
	}{
		{JobExpireListings, cfg.ExpireListings, s.ExpireListings, true},
		{JobGeocode, cfg.Geocode, s.Geocode, geocoder != nil},
		{JobStaleLeads, cfg.StaleLeads, s.StaleLeads, notifier != nil},
	}
	for _, job := range jobs {
		if !job.on || job.spec == "" {
			continue
		}
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.spec, func() { s.Run(s.ctx, name, run) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for job %s: %w", job.spec, name, err)
		}
		logger.WithFields(logrus.Fields{"job": name, "schedule": job.spec}).Info("Scheduled job")
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the context of a running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Run executes one job under the job mutex and records its outcome.
func (s *Scheduler) Run(ctx context.Context, name string, job func(context.Context) error) error {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	start := time.Now()
	s.logger.WithField("job", name).Info("Starting job")
	err := job(ctx)
	elapsed := time.Since(start)
	metrics.RecordJob(name, elapsed, err)

	entry := s.logger.WithFields(logrus.Fields{"job": name, "duration": elapsed.String()})
	if err != nil {
		entry.WithError(err).Error("Job failed")
		return err
	}
	entry.Info("Job completed successfully")
	return nil
}

// ExpireListings archives active listings past their expiry date.
func (s *Scheduler) ExpireListings(ctx context.Context) error {
	n, err := s.store.ArchiveExpiredListings(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.WithField("archived", n).Info("Archived expired listings")
	}
	return nil
}

func (s *Scheduler) Geocode(ctx context.Context) error {
	if s.geocoder == nil {
		return nil
	}
	_, err := s.geocoder.Backfill(ctx, s.store, geocodeBatchSize)
	return err
}

// StaleLeads sends the digest of leads nobody has contacted yet.
func (s *Scheduler) StaleLeads(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	now := s.now()
	leads, err := s.store.StaleLeads(ctx, now.Add(-staleLeadAge))
	if err != nil {
		return err
	}
	s.logger.WithField("count", len(leads)).Info("Found stale leads")
	return s.notifier.NotifyStaleLeads(ctx, leads, now)
}
