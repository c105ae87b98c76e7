// Package feed defines what the bot needs from a social feed transport.
package feed

import (
	"context"
	"errors"
)

// Mention is an inbound message that references the bot.
type Mention struct {
	ID           string // unique per event, used for deduplication
	AuthorID     string // stable account id
	AuthorHandle string
	Text         string // plain text, markup removed
	ThreadID     string // where a reply goes
}

// Feed is a social feed transport.
type Feed interface {
	// Name identifies the transport in logs and status output.
	Name() string
	// Mentions starts a streaming session. The channel is closed when the
	// session ends, either because ctx is done or the connection dropped.
	Mentions(ctx context.Context) (<-chan Mention, error)
	Reply(ctx context.Context, text, threadID string) error
	Broadcast(ctx context.Context, text string) error
}

// ErrBadThreadID is returned by Reply when the thread id cannot be parsed.
var ErrBadThreadID = errors.New("bad thread id")
