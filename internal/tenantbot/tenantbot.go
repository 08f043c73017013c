// Package tenantbot is the command surface every child bot runs.
package tenantbot

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"clonebot/internal/model"
	"clonebot/internal/platform"
	"clonebot/internal/storage"
	"clonebot/internal/supervisor"
	"clonebot/internal/worker"
)

// CommandTable is installed on every child at spawn time.
var CommandTable = supervisor.CommandTable{
	Version: "1",
	Commands: []platform.Command{
		{Name: "start", Description: "Start the bot"},
		{Name: "users", Description: "Total Users on this bot"},
		{Name: "source", Description: "Source code of this bot"},
	},
}

const greeting = "Hi! I save content from public channels. Send me a post link to get started."

type Bot struct {
	dir       storage.Directory
	sourceURL string
	logger    *zap.Logger
}

func New(dir storage.Directory, sourceURL string, logger *zap.Logger) *Bot {
	return &Bot{dir: dir, sourceURL: sourceURL, logger: logger.Named("tenantbot")}
}

// Handler binds the bot to one child's session.
func (b *Bot) Handler(t model.Tenant, session platform.Session) worker.Handler {
	log := b.logger.With(zap.String("tenant", t.Handle))
	return func(ctx context.Context, u platform.Update) {
		if !u.Private || !u.IsCommand() {
			return
		}
		text, err := b.handle(ctx, u)
		if err != nil {
			log.Error("command failed", zap.String("command", u.Command), zap.Error(err))
			text = "Something went wrong, please try again later."
		}
		if text == "" {
			return
		}
		if err := session.Send(ctx, platform.ReplyTo(u, text)); err != nil {
			log.Warn("reply failed", zap.Int64("chat", u.ChatID), zap.Error(err))
		}
	}
}

func (b *Bot) handle(ctx context.Context, u platform.Update) (string, error) {
	switch u.Command {
	case "start":
		key := strconv.FormatInt(u.UserID, 10)
		if err := b.dir.Insert(ctx, model.SetTotalUsers, key); err != nil {
			return "", err
		}
		return greeting, nil
	case "users":
		users, err := b.dir.List(ctx, model.SetTotalUsers)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("👥 Total Users: %d", len(users)), nil
	case "source":
		if b.sourceURL == "" {
			return "Source code is not published.", nil
		}
		return "Source code: " + b.sourceURL, nil
	}
	return "", nil
}
