// Package mastodon adapts a Mastodon account's user stream to the feed
// interface.
package mastodon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gomastodon "github.com/mattn/go-mastodon"
	"golang.org/x/net/html"

	"github.com/suspectuso/galleon-bot/internal/feed"
)

// Config holds the account credentials.
type Config struct {
	Server      string
	AccessToken string
	Visibility  string
}

// Feed streams mention notifications.
type Feed struct {
	client     *gomastodon.Client
	visibility string
	log        *slog.Logger
	self       *gomastodon.Account
}

var _ feed.Feed = (*Feed)(nil)

// New verifies the credentials by fetching the bot's own account.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Feed, error) {
	if cfg.Visibility == "" {
		cfg.Visibility = "public"
	}

	client := gomastodon.NewClient(&gomastodon.Config{
		Server:      cfg.Server,
		AccessToken: cfg.AccessToken,
	})

	me, err := client.GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("get current account: %w", err)
	}

	log.Info("mastodon account verified", "username", me.Username, "server", cfg.Server)

	return &Feed{
		client:     client,
		visibility: cfg.Visibility,
		log:        log,
		self:       me,
	}, nil
}

func (f *Feed) Name() string { return "mastodon" }

// Mentions opens the user stream. The session ends, closing the channel, on
// the first stream error or when ctx is done.
func (f *Feed) Mentions(ctx context.Context) (<-chan feed.Mention, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	events, err := f.client.StreamingUser(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open user stream: %w", err)
	}

	out := make(chan feed.Mention)

	go func() {
		defer close(out)
		defer cancel()

		for ev := range events {
			switch e := ev.(type) {
			case *gomastodon.NotificationEvent:
				m, ok := ToMention(e.Notification, f.self)
				if !ok {
					continue
				}
				select {
				case out <- m:
				case <-streamCtx.Done():
				}
			case *gomastodon.ErrorEvent:
				if streamCtx.Err() == nil {
					f.log.Warn("mastodon stream error", "error", e.Error())
				}
				// drain until the client closes the channel
				cancel()
			}
		}
	}()

	return out, nil
}

// ToMention converts a mention notification that names self into a Mention.
func ToMention(n *gomastodon.Notification, self *gomastodon.Account) (feed.Mention, bool) {
	if n == nil || n.Type != "mention" || n.Status == nil {
		return feed.Mention{}, false
	}
	st := n.Status

	if self != nil && len(st.Mentions) > 0 {
		named := false
		for _, m := range st.Mentions {
			if m.ID == self.ID || strings.EqualFold(m.Username, self.Username) {
				named = true
				break
			}
		}
		if !named {
			return feed.Mention{}, false
		}
	}

	handle := st.Account.Acct
	if handle == "" {
		handle = st.Account.Username
	}

	return feed.Mention{
		ID:           string(n.ID),
		AuthorID:     string(st.Account.ID),
		AuthorHandle: handle,
		Text:         PlainText(st.Content),
		ThreadID:     string(st.ID),
	}, true
}

// PlainText strips markup from status HTML. Line and paragraph breaks become
// newlines; entities are decoded.
func PlainText(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "p" {
				b.WriteByte('\n')
			}
		}
	}
}

// Reply posts text in reply to the status threadID.
func (f *Feed) Reply(ctx context.Context, text, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("%w: empty", feed.ErrBadThreadID)
	}

	_, err := f.client.PostStatus(ctx, &gomastodon.Toot{
		Status:      text,
		InReplyToID: gomastodon.ID(threadID),
		Visibility:  f.visibility,
	})
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	return nil
}

// Broadcast posts a public status.
func (f *Feed) Broadcast(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("empty broadcast")
	}

	_, err := f.client.PostStatus(ctx, &gomastodon.Toot{
		Status:     text,
		Visibility: "public",
	})
	if err != nil {
		return fmt.Errorf("post broadcast: %w", err)
	}
	return nil
}
