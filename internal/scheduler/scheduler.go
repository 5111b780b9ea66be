package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Job func(ctx context.Context) error

type Config struct {
	Name     string
	Interval time.Duration
	// RunHour delays the first run to the next occurrence of that hour in
	// Location. Negative runs immediately on Start.
	RunHour  int
	Location *time.Location
	Logger   *slog.Logger
}

type Status struct {
	Running      bool       `json:"running"`
	Interval     string     `json:"interval"`
	NextRun      *time.Time `json:"nextRun,omitempty"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastDuration string     `json:"lastDuration,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	Runs         int64      `json:"runs"`
}

type Scheduler struct {
	cfg Config
	job Job
	log *slog.Logger

	running atomic.Bool
	runs    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// runMu keeps scheduled and manual runs from overlapping.
	runMu sync.Mutex

	stateMu  sync.Mutex
	nextRun  time.Time
	lastRun  time.Time
	lastTook time.Duration
	lastErr  error
}

func New(cfg Config, job Job) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	if cfg.RunHour > 23 {
		return nil, errors.New("run hour must be between 0 and 23")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "scheduler"
	}
	return &Scheduler{
		cfg:  cfg,
		job:  job,
		log:  cfg.Logger.With("component", cfg.Name),
		done: make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.loop(ctx)
	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)
	s.setNext(time.Time{})

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// RunOnce runs the job now, waiting for a scheduled run in progress.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.safeRun(ctx)
}

func (s *Scheduler) Status() Status {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	st := Status{
		Running:  s.running.Load(),
		Interval: s.cfg.Interval.String(),
		Runs:     s.runs.Load(),
	}
	if !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
		st.LastDuration = s.lastTook.String()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.log.Info("scheduler started", "interval", s.cfg.Interval.String(), "run_hour", s.cfg.RunHour)

	if s.cfg.RunHour >= 0 {
		first := nextRun(time.Now(), s.cfg.RunHour, s.cfg.Location)
		s.setNext(first)

		wait := time.NewTimer(time.Until(first))
		select {
		case <-ctx.Done():
			wait.Stop()
			s.log.Info("scheduler stopping")
			return
		case <-wait.C:
		}
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	_ = s.safeRun(ctx)
	s.setNext(time.Now().Add(s.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-ticker.C:
			_ = s.safeRun(ctx)
			s.setNext(time.Now().Add(s.cfg.Interval))
		}
	}
}

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", "panic", r)
			err = errors.New("job panicked")
		}
		took := time.Since(start)

		s.runs.Add(1)
		s.stateMu.Lock()
		s.lastRun, s.lastTook, s.lastErr = start, took, err
		s.stateMu.Unlock()

		if err != nil {
			s.log.Error("scheduler tick failed", "error", err, "duration_ms", took.Milliseconds())
			return
		}
		s.log.Info("scheduler tick completed", "duration_ms", took.Milliseconds())
	}()

	return s.job(ctx)
}

func (s *Scheduler) setNext(t time.Time) {
	s.stateMu.Lock()
	s.nextRun = t
	s.stateMu.Unlock()
}

// nextRun returns the next time at hour:00 in loc strictly after now.
func nextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
