// Package scheduler runs the daily clock: it opens the attendance window in
// the morning and announces curfew (closing the window) at night.
//
// The loop polls the wall clock and fires a transition when the current
// hour:minute equals its configured time and it has not fired yet that
// calendar day. The poll interval must be shorter than a minute; a tick
// skipped for the whole trigger minute (process paused, clock jump) misses
// that day's transition.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Broadcaster posts a message to the bot's public timeline.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) error
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) matches(t time.Time) bool {
	return t.Hour() == c.Hour && t.Minute() == c.Minute
}

// Config holds the schedule.
type Config struct {
	OpenAt        Clock
	CloseAt       Clock
	Location      *time.Location
	PollInterval  time.Duration
	StopTimeout   time.Duration
	OpenMessage   string
	CurfewMessage string
}

// DefaultConfig opens at 07:00 and closes at 00:00 local time.
func DefaultConfig() Config {
	return Config{
		OpenAt:        Clock{Hour: 7},
		CloseAt:       Clock{Hour: 0},
		Location:      time.Local,
		PollInterval:  30 * time.Second,
		StopTimeout:   5 * time.Second,
		OpenMessage:   "☀️ Good morning! Attendance is open.\n\n📢 Mention me with 'attendance' to check in!",
		CurfewMessage: "🌙 Curfew has started. Everyone back to the dormitories.",
	}
}

// Status is a snapshot of the attendance window.
type Status struct {
	Active    bool       `json:"attendance_active"`
	StartedAt *time.Time `json:"attendance_started_at,omitempty"`
}

// Scheduler owns the attendance window.
type Scheduler struct {
	cfg         Config
	broadcaster Broadcaster
	log         *slog.Logger
	now         func() time.Time

	active    atomic.Bool
	startedAt atomic.Pointer[time.Time]

	// per-trigger "last fired" date latches
	tickMu     sync.Mutex
	lastOpen   string
	lastCurfew string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler. Zero-valued config fields take defaults.
func New(cfg Config, b Broadcaster, log *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.OpenMessage == "" {
		cfg.OpenMessage = def.OpenMessage
	}
	if cfg.CurfewMessage == "" {
		cfg.CurfewMessage = def.CurfewMessage
	}

	return &Scheduler{
		cfg:         cfg,
		broadcaster: b,
		log:         log,
		now:         time.Now,
	}
}

// IsAttendanceActive reports whether attendance can be claimed right now.
func (s *Scheduler) IsAttendanceActive() bool {
	return s.active.Load()
}

// Status returns the current window state.
func (s *Scheduler) Status() Status {
	st := Status{Active: s.active.Load()}
	if t := s.startedAt.Load(); t != nil {
		tt := *t
		st.StartedAt = &tt
	}
	return st
}

// Start spawns the polling loop unless it is already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.log.Info("scheduler started",
		"open_at", s.cfg.OpenAt.String(),
		"close_at", s.cfg.CloseAt.String(),
		"location", s.cfg.Location.String(),
		"interval", s.cfg.PollInterval,
	)

	go s.run(loopCtx, s.done)
}

// Stop signals the loop and waits up to StopTimeout for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warn("scheduler did not stop in time", "timeout", s.cfg.StopTimeout)
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick evaluates both triggers against now. The loop calls it every poll
// interval; tests call it with a simulated clock.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now = now.In(s.cfg.Location)
	date := now.Format("2006-01-02")

	if s.cfg.CloseAt.matches(now) && s.lastCurfew != date {
		s.curfew(ctx)
		s.lastCurfew = date
	}

	if s.cfg.OpenAt.matches(now) && s.lastOpen != date {
		s.open(ctx, now)
		s.lastOpen = date
	}
}

func (s *Scheduler) open(ctx context.Context, now time.Time) {
	s.startedAt.Store(&now)
	s.active.Store(true)
	s.log.Info("attendance opened", "at", now)

	if err := s.broadcaster.Broadcast(ctx, s.cfg.OpenMessage); err != nil {
		s.log.Error("post attendance message", "error", err)
	}
}

func (s *Scheduler) curfew(ctx context.Context) {
	if err := s.broadcaster.Broadcast(ctx, s.cfg.CurfewMessage); err != nil {
		s.log.Error("post curfew message", "error", err)
	}

	if s.active.Swap(false) {
		s.startedAt.Store(nil)
		s.log.Info("attendance closed")
	}
}
