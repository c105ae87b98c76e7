// Package telegram adapts a Telegram bot to the feed interface.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/galleon-bot/internal/feed"
)

// ErrNoBroadcastChat is returned by Broadcast when no chat is configured.
var ErrNoBroadcastChat = errors.New("no broadcast chat configured")

type session struct {
	ctx context.Context
	out chan feed.Mention
	wg  sync.WaitGroup
}

// Feed receives mentions through long polling.
type Feed struct {
	bot           *bot.Bot
	broadcastChat int64
	log           *slog.Logger

	self *models.User

	mu      sync.Mutex
	session *session
}

var _ feed.Feed = (*Feed)(nil)

// New creates the bot and looks up its own account.
func New(ctx context.Context, token string, broadcastChat int64, log *slog.Logger) (*Feed, error) {
	f := &Feed{
		broadcastChat: broadcastChat,
		log:           log,
	}

	tgBot, err := bot.New(token, bot.WithDefaultHandler(f.defaultHandler))
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	f.bot = tgBot

	me, err := tgBot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	f.self = me

	return f, nil
}

func (f *Feed) Name() string { return "telegram" }

// Mentions starts polling. The channel closes once ctx is done and every
// in-flight update has been delivered or dropped.
func (f *Feed) Mentions(ctx context.Context) (<-chan feed.Mention, error) {
	f.mu.Lock()
	if f.session != nil {
		f.mu.Unlock()
		return nil, errors.New("session already running")
	}
	s := &session{ctx: ctx, out: make(chan feed.Mention)}
	f.session = s
	f.mu.Unlock()

	f.log.Info("telegram polling started", "username", f.self.Username)

	go func() {
		f.bot.Start(ctx)

		f.mu.Lock()
		f.session = nil
		f.mu.Unlock()

		s.wg.Wait()
		close(s.out)
		f.log.Info("telegram polling stopped")
	}()

	return s.out, nil
}

func (f *Feed) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	m, ok := ToMention(update, f.self)
	if !ok {
		return
	}

	f.mu.Lock()
	s := f.session
	if s == nil {
		f.mu.Unlock()
		return
	}
	s.wg.Add(1)
	f.mu.Unlock()
	defer s.wg.Done()

	select {
	case s.out <- m:
	case <-s.ctx.Done():
	}
}

// ToMention converts an update into a mention when the message is addressed
// to self: a private chat, a reply to one of its messages, or text naming
// its @username.
func ToMention(update *models.Update, self *models.User) (feed.Mention, bool) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return feed.Mention{}, false
	}
	msg := update.Message
	if msg.From.IsBot || strings.TrimSpace(msg.Text) == "" {
		return feed.Mention{}, false
	}

	addressed := msg.Chat.Type == models.ChatTypePrivate
	if !addressed && msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && self != nil {
		addressed = msg.ReplyToMessage.From.ID == self.ID
	}
	if !addressed && self != nil && self.Username != "" {
		addressed = strings.Contains(strings.ToLower(msg.Text), "@"+strings.ToLower(self.Username))
	}
	if !addressed {
		return feed.Mention{}, false
	}

	handle := msg.From.Username
	if handle == "" {
		handle = msg.From.FirstName
	}
	thread := FormatThreadID(msg.Chat.ID, msg.ID)

	return feed.Mention{
		ID:           thread,
		AuthorID:     strconv.FormatInt(msg.From.ID, 10),
		AuthorHandle: handle,
		Text:         msg.Text,
		ThreadID:     thread,
	}, true
}

// FormatThreadID encodes a chat and message id as "chat:message".
func FormatThreadID(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// ParseThreadID is the inverse of FormatThreadID.
func ParseThreadID(threadID string) (int64, int, error) {
	chat, msg, ok := strings.Cut(threadID, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", feed.ErrBadThreadID, threadID)
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", feed.ErrBadThreadID, threadID)
	}
	msgID, err := strconv.Atoi(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", feed.ErrBadThreadID, threadID)
	}
	return chatID, msgID, nil
}

// Reply answers the message identified by threadID.
func (f *Feed) Reply(ctx context.Context, text, threadID string) error {
	chatID, msgID, err := ParseThreadID(threadID)
	if err != nil {
		return err
	}

	_, err = f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		ReplyParameters: &models.ReplyParameters{
			MessageID:                msgID,
			AllowSendingWithoutReply: true,
		},
	})
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// Broadcast posts to the configured announcement chat.
func (f *Feed) Broadcast(ctx context.Context, text string) error {
	if f.broadcastChat == 0 {
		return ErrNoBroadcastChat
	}

	_, err := f.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: f.broadcastChat,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send broadcast: %w", err)
	}
	return nil
}
