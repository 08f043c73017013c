package platform

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramDialer opens Bot API sessions.
type TelegramDialer struct {
	// Endpoint is a format string taking the token and the method name.
	// Empty means the public Bot API.
	Endpoint    string
	Client      *http.Client
	PollTimeout int
	Logger      *zap.Logger
}

func NewTelegramDialer(endpoint string, pollTimeout int, logger *zap.Logger) *TelegramDialer {
	_ = tgbotapi.SetLogger(zap.NewStdLog(logger.Named("telegram")))

	return &TelegramDialer{
		Endpoint:    endpoint,
		Client:      &http.Client{Timeout: time.Duration(pollTimeout+10) * time.Second},
		PollTimeout: pollTimeout,
		Logger:      logger,
	}
}

// Open authenticates token against the Bot API. The library fetches the bot
// identity as part of authentication, so a revoked token fails here.
func (d *TelegramDialer) Open(ctx context.Context, name, token string) (Session, error) {
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	api, err := call(ctx, func() (*tgbotapi.BotAPI, error) {
		return tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	})
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", name, err)
	}

	return &telegramSession{
		name:        name,
		api:         api,
		pollTimeout: d.PollTimeout,
		logger:      d.Logger.With(zap.String("session", name)),
		done:        make(chan struct{}),
	}, nil
}

type telegramSession struct {
	name        string
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      *zap.Logger

	startOnce sync.Once
	closeOnce sync.Once
	updates   chan Update
	done      chan struct{}
}

func (s *telegramSession) SetCommands(ctx context.Context, cmds []Command) error {
	botCmds := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		botCmds = append(botCmds, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}

	_, err := call(ctx, func() (*tgbotapi.APIResponse, error) {
		return s.api.Request(tgbotapi.NewSetMyCommands(botCmds...))
	})
	if err != nil {
		return fmt.Errorf("set commands for %s: %w", s.name, err)
	}
	return nil
}

func (s *telegramSession) Self(ctx context.Context) (Identity, error) {
	me, err := call(ctx, s.api.GetMe)
	if err != nil {
		return Identity{}, fmt.Errorf("get me for %s: %w", s.name, err)
	}
	return Identity{UserID: me.ID, Username: me.UserName}, nil
}

func (s *telegramSession) Updates() <-chan Update {
	s.startOnce.Do(func() {
		s.updates = make(chan Update)

		cfg := tgbotapi.NewUpdate(0)
		cfg.Timeout = s.pollTimeout
		src := s.api.GetUpdatesChan(cfg)

		go func() {
			defer close(s.updates)
			for raw := range src {
				u, ok := convertUpdate(raw)
				if !ok {
					continue
				}
				select {
				case s.updates <- u:
				case <-s.done:
					return
				}
			}
		}()
		s.logger.Debug("polling started")
	})
	return s.updates
}

func (s *telegramSession) Send(ctx context.Context, r Reply) error {
	var c tgbotapi.Chattable
	if r.Document != "" {
		doc := tgbotapi.NewDocument(r.ChatID, tgbotapi.FilePath(r.Document))
		doc.Caption = r.Text
		doc.ReplyToMessageID = r.ReplyTo
		c = doc
	} else {
		msg := tgbotapi.NewMessage(r.ChatID, r.Text)
		msg.ReplyToMessageID = r.ReplyTo
		if r.Button != nil {
			msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(r.Button.Text, r.Button.URL)),
			)
		}
		c = msg
	}

	_, err := call(ctx, func() (tgbotapi.Message, error) {
		return s.api.Send(c)
	})
	if err != nil {
		return fmt.Errorf("send to chat %d: %w", r.ChatID, err)
	}
	return nil
}

func (s *telegramSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.api.StopReceivingUpdates()
		s.logger.Debug("session closed")
	})
	return nil
}

func convertUpdate(raw tgbotapi.Update) (Update, bool) {
	m := raw.Message
	if m == nil || m.Chat == nil {
		return Update{}, false
	}

	u := Update{
		UpdateID:  raw.UpdateID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Text:      m.Text,
		Private:   m.Chat.IsPrivate(),
	}
	if m.From != nil {
		u.UserID = m.From.ID
	}
	if m.IsCommand() {
		u.Command = m.Command()
		u.Args = m.CommandArguments()
	}
	return u, true
}

type callResult[T any] struct {
	v   T
	err error
}

// call runs fn and returns early when ctx is done. The Bot API client has no
// context support; an abandoned call finishes in the background, bounded by
// the HTTP client timeout.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn()
		done <- callResult[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
