package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/notifications"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	JobRetentionSweep = "notification-retention-sweep"
	JobAgePurge       = "notification-age-purge"

	defaultSweepInterval = time.Hour
	defaultPurgeAgeDays  = 30
)

var (
	errMissingSweeper = errors.New("maintenance: retention sweeper is required")
	errMissingPurger  = errors.New("maintenance: age purger is required")
	errInvalidHour    = errors.New("maintenance: purge hour must be between 0 and 23")
	errInvalidAge     = fmt.Errorf("maintenance: purge age must not exceed %d days", notifications.MaxAgeDays)
)

// RetentionSweeper trims every user back to the retention cap.
type RetentionSweeper interface {
	SweepAllUsers(ctx context.Context) (notifications.SweepSummary, error)
}

// AgePurger deletes notifications created before a cutoff.
type AgePurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config describes the maintenance jobs.
type Config struct {
	Sweeper       RetentionSweeper
	Purger        AgePurger
	SweepInterval time.Duration
	PurgeHour     int
	PurgeAgeDays  int
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Scheduler runs the hourly retention sweep and the daily age purge.
type Scheduler struct {
	sweeper      RetentionSweeper
	purger       AgePurger
	purgeAgeDays int
	clock        func() time.Time
	logger       *zap.Logger

	cron   gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers both jobs without starting them.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Sweeper == nil {
		return nil, errMissingSweeper
	}
	if cfg.Purger == nil {
		return nil, errMissingPurger
	}
	if cfg.PurgeHour < 0 || cfg.PurgeHour > 23 {
		return nil, errInvalidHour
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	if cfg.PurgeAgeDays > notifications.MaxAgeDays {
		return nil, errInvalidAge
	}
	purgeAgeDays := cfg.PurgeAgeDays
	if purgeAgeDays <= 0 {
		purgeAgeDays = defaultPurgeAgeDays
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(newCronLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("maintenance: create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := &Scheduler{
		sweeper:      cfg.Sweeper,
		purger:       cfg.Purger,
		purgeAgeDays: purgeAgeDays,
		clock:        clock,
		logger:       logger,
		cron:         cron,
		ctx:          ctx,
		cancel:       cancel,
	}

	if _, err := cron.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() { scheduler.RunRetentionSweep(scheduler.ctx) }),
		gocron.WithName(JobRetentionSweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		scheduler.abort()
		return nil, fmt.Errorf("maintenance: register %s: %w", JobRetentionSweep, err)
	}

	if _, err := cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(cfg.PurgeHour), 0, 0))),
		gocron.NewTask(func() { scheduler.RunAgePurge(scheduler.ctx) }),
		gocron.WithName(JobAgePurge),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		scheduler.abort()
		return nil, fmt.Errorf("maintenance: register %s: %w", JobAgePurge, err)
	}

	return scheduler, nil
}

func (s *Scheduler) abort() {
	s.cancel()
	_ = s.cron.Shutdown()
}

// Start begins running the registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("maintenance scheduler started", zap.Strings("jobs", s.JobNames()))
}

// Stop cancels in-flight runs and waits for the scheduler to shut down.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.cron.Shutdown()
}

// JobNames lists the registered job names.
func (s *Scheduler) JobNames() []string {
	jobs := s.cron.Jobs()
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.Name())
	}
	return names
}

// RunRetentionSweep trims every user to the retention cap. Failures are logged.
func (s *Scheduler) RunRetentionSweep(ctx context.Context) notifications.SweepSummary {
	startedAt := s.clock()
	s.logger.Info("maintenance job started", zap.String("job", JobRetentionSweep))

	summary, err := s.sweeper.SweepAllUsers(ctx)
	if err != nil {
		s.logger.Error("maintenance job failed",
			zap.String("job", JobRetentionSweep),
			zap.Error(err))
		return summary
	}
	s.logger.Info("maintenance job finished",
		zap.String("job", JobRetentionSweep),
		zap.Int("users", summary.Users),
		zap.Int("deleted", summary.Deleted),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", s.clock().Sub(startedAt)))
	return summary
}

// RunAgePurge deletes notifications older than the configured age. Failures are logged.
func (s *Scheduler) RunAgePurge(ctx context.Context) int64 {
	startedAt := s.clock()
	cutoff := notifications.AgeCutoff(startedAt, s.purgeAgeDays)
	s.logger.Info("maintenance job started",
		zap.String("job", JobAgePurge),
		zap.Time("cutoff", cutoff))

	deleted, err := s.purger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("maintenance job failed",
			zap.String("job", JobAgePurge),
			zap.Error(err))
		return 0
	}
	s.logger.Info("maintenance job finished",
		zap.String("job", JobAgePurge),
		zap.Int64("deleted", deleted),
		zap.Duration("elapsed", s.clock().Sub(startedAt)))
	return deleted
}
