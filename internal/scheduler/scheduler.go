// Package scheduler runs periodic library jobs (backups, rescans) on cron
// schedules for the long-running daemon.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"animlib/internal/animlib"
	"animlib/internal/backup"
	"animlib/internal/model"
	"animlib/internal/scanner"
)

// ErrJobRunning is returned by RunNow when the job is still busy with an
// earlier run.
var ErrJobRunning = errors.New("job is already running")

// parser accepts standard five-field expressions plus descriptors like @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a usable schedule.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: invalid cron schedule %q: %v", model.ErrInvalid, expr, err)
	}
	return nil
}

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type entry struct {
	job Job
	id  cron.EntryID
	mu  sync.Mutex // held while the job runs
}

// Scheduler runs jobs on their schedules. A job never overlaps with itself:
// a tick that arrives while the previous run is busy is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger animlib.Logger

	mu      sync.Mutex
	entries map[string]*entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an idle scheduler.
func New(logger animlib.Logger) *Scheduler {
	if logger == nil {
		logger = animlib.NewNopLogger()
	}
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:  logger,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if err := ValidateSchedule(job.Schedule); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[job.Name]; dup {
		return fmt.Errorf("%w: job %s already scheduled", model.ErrConflict, job.Name)
	}
	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() {
		if err := s.run(s.ctx, e); errors.Is(err, ErrJobRunning) {
			s.logger.Warn("skipping job tick, previous run still busy", "job", job.Name)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
	}
	e.id = id
	s.entries[job.Name] = e
	s.logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	if !e.mu.TryLock() {
		return ErrJobRunning
	}
	defer e.mu.Unlock()

	start := time.Now()
	s.logger.Info("job started", "job", e.job.Name)
	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", e.job.Name, "error", err, "duration", time.Since(start))
		return err
	}
	s.logger.Info("job finished", "job", e.job.Name, "duration", time.Since(start))
	return nil
}

// RunNow runs the named job immediately in the calling goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s: %w", name, model.ErrNotFound)
	}
	return s.run(ctx, e)
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins firing jobs. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "jobs", len(s.entries))

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop stops firing jobs, cancels the context of running jobs and waits for
// them to return. A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when the named job fires next, or nil if the scheduler is
// not running or the job is unknown.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok || !s.running {
		return nil
	}
	next := s.cron.Entry(e.id).Next
	return &next
}

// BackupJob backs up the database with svc.
func BackupJob(schedule string, svc *backup.Service) Job {
	return Job{
		Name:     "backup",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := svc.Create(ctx)
			return err
		},
	}
}

// ScanJob rescans the library at root with sc.
func ScanJob(schedule string, sc *scanner.Scanner, root string) Job {
	return Job{
		Name:     "scan",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := sc.Scan(ctx, root)
			return err
		},
	}
}

// cronLogger routes the cron library's own logging into the app logger.
type cronLogger struct {
	logger animlib.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
