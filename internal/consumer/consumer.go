// Package consumer drives a feed session: it reads mentions one at a time,
// drops duplicates, dispatches them and reconnects when the session ends.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/suspectuso/galleon-bot/internal/dedup"
	"github.com/suspectuso/galleon-bot/internal/feed"
	"github.com/suspectuso/galleon-bot/internal/ledger"
)

// ErrSessionClosed is reported when a session ends without ctx being done.
var ErrSessionClosed = errors.New("session closed")

// Handler turns a mention into a reply. An empty reply is not posted.
type Handler interface {
	Handle(ctx context.Context, u ledger.User, text string) string
}

// Config controls reconnection.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxAttempts bounds consecutive failed sessions; 0 retries forever.
	MaxAttempts int
	// StableAfter is how long a session must last to reset the failure count.
	StableAfter time.Duration
	DedupMax    int
	DedupKeep   int
}

// DefaultConfig returns the production reconnect policy.
func DefaultConfig() Config {
	return Config{
		InitialInterval: 5 * time.Second,
		MaxInterval:     2 * time.Minute,
		MaxAttempts:     20,
		StableAfter:     time.Minute,
		DedupMax:        dedup.DefaultMaxSize,
		DedupKeep:       dedup.DefaultKeepSize,
	}
}

// Consumer owns the mention loop.
type Consumer struct {
	feed    feed.Feed
	handler Handler
	cfg     Config
	seen    *dedup.Set
	log     *slog.Logger

	processed atomic.Int64
}

// New creates a consumer. Zero-valued config fields take defaults.
func New(f feed.Feed, h Handler, cfg Config, log *slog.Logger) *Consumer {
	def := DefaultConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = def.StableAfter
	}

	return &Consumer{
		feed:    f,
		handler: h,
		cfg:     cfg,
		seen:    dedup.New(cfg.DedupMax, cfg.DedupKeep),
		log:     log,
	}
}

// Processed returns the number of mentions dispatched so far.
func (c *Consumer) Processed() int64 {
	return c.processed.Load()
}

// Run blocks until ctx is done (returning nil) or the reconnect budget is
// exhausted (returning the last session error).
func (c *Consumer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval

	failures := 0
	for {
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(started) >= c.cfg.StableAfter {
			failures = 0
			bo.Reset()
		}
		failures++

		if c.cfg.MaxAttempts > 0 && failures > c.cfg.MaxAttempts {
			return fmt.Errorf("%s feed: giving up after %d attempts: %w", c.feed.Name(), c.cfg.MaxAttempts, err)
		}

		wait := bo.NextBackOff()
		c.log.Warn("feed session ended, reconnecting",
			"feed", c.feed.Name(),
			"error", err,
			"attempt", failures,
			"wait", wait,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) session(ctx context.Context) error {
	mentions, err := c.feed.Mentions(ctx)
	if err != nil {
		return err
	}

	c.log.Info("feed session started", "feed", c.feed.Name())

	for m := range mentions {
		c.process(ctx, m)
	}
	return ErrSessionClosed
}

func (c *Consumer) process(ctx context.Context, m feed.Mention) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic handling mention",
				"mention_id", m.ID,
				"user", m.AuthorHandle,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if m.ID != "" && !c.seen.Add(m.ID) {
		c.log.Debug("duplicate mention dropped", "mention_id", m.ID)
		return
	}

	c.log.Info("mention received", "mention_id", m.ID, "user", m.AuthorHandle, "text", m.Text)
	c.processed.Add(1)

	reply := c.handler.Handle(ctx, ledger.User{ID: m.AuthorID, Handle: m.AuthorHandle}, m.Text)
	if reply == "" {
		return
	}

	if err := c.feed.Reply(ctx, reply, m.ThreadID); err != nil {
		c.log.Error("send reply", "mention_id", m.ID, "thread_id", m.ThreadID, "error", err)
	}
}
