// Package frontend is the parent bot's command surface. It only talks to
// the admission manager and never to storage or the supervisor directly.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"clonebot/internal/manager"
	"clonebot/internal/platform"
	"clonebot/internal/supervisor"
	"clonebot/internal/worker"
)

var CommandTable = supervisor.CommandTable{
	Version: "1",
	Commands: []platform.Command{
		{Name: "start", Description: "Start the bot"},
		{Name: "stats", Description: "Usage statistics (admins)"},
		{Name: "logs", Description: "Download the log file (admins)"},
	},
}

const (
	msgGreeting = "Hi, I can create a contents saver bot for public channels for free.\n" +
		"Just send/forward your Bot Token to me, and I will handle the rest.\n\n" +
		"You can get your bot token from @BotFather."
	msgStarted      = "✅ Successfully started your bot."
	msgNoCredential = "❌ No valid Bot Token found. Get it from @BotFather."
	msgAlreadyRun   = "⚠️ This bot is already running."
	msgFailed       = "❌ An error occurred. Please check your Bot Token and try again."
	msgUnavailable  = "⚠️ The service is temporarily unavailable. Please try again later."
	msgNoLogs       = "No logs available."
	msgNoBots       = "No bots registered."
)

// Admitter is the slice of the admission manager the front-end needs.
type Admitter interface {
	Admit(ctx context.Context, text string, userID int64) manager.Result
	Stats(ctx context.Context) (manager.Stats, error)
	RegisterUser(ctx context.Context, userID int64) error
}

type Frontend struct {
	admitter Admitter
	isAdmin  func(userID int64) bool
	logFile  string
	logger   *zap.Logger
}

func New(admitter Admitter, isAdmin func(int64) bool, logFile string, logger *zap.Logger) *Frontend {
	return &Frontend{
		admitter: admitter,
		isAdmin:  isAdmin,
		logFile:  logFile,
		logger:   logger.Named("frontend"),
	}
}

// Handler returns the update handler for the parent bot's session. Each
// update produces at most one reply.
func (f *Frontend) Handler(session platform.Session) worker.Handler {
	return func(ctx context.Context, u platform.Update) {
		if !u.Private {
			return
		}
		reply := f.route(ctx, u)
		if err := session.Send(ctx, reply); err != nil {
			f.logger.Warn("reply failed", zap.Int64("chat", u.ChatID), zap.Error(err))
		}
	}
}

func (f *Frontend) route(ctx context.Context, u platform.Update) platform.Reply {
	switch {
	case u.Command == "start":
		return f.start(ctx, u)
	case u.Command == "stats" && f.isAdmin(u.UserID):
		return f.stats(ctx, u)
	case u.Command == "logs" && f.isAdmin(u.UserID):
		return f.logs(u)
	}
	return f.admit(ctx, u)
}

func (f *Frontend) start(ctx context.Context, u platform.Update) platform.Reply {
	f.logger.Info("user started the bot", zap.Int64("user", u.UserID))
	if err := f.admitter.RegisterUser(ctx, u.UserID); err != nil {
		f.logger.Error("registering user", zap.Int64("user", u.UserID), zap.Error(err))
	}
	return platform.ReplyTo(u, msgGreeting)
}

func (f *Frontend) stats(ctx context.Context, u platform.Update) platform.Reply {
	st, err := f.admitter.Stats(ctx)
	if err != nil {
		f.logger.Error("stats unavailable", zap.Error(err))
		return platform.ReplyTo(u, msgUnavailable)
	}
	f.logger.Info("admin requested stats", zap.Int("users", st.Users), zap.Int("bots", len(st.Bots)))
	return platform.ReplyTo(u, FormatStats(st))
}

// FormatStats renders the /stats reply.
func FormatStats(st manager.Stats) string {
	bots := msgNoBots
	if len(st.Bots) > 0 {
		bots = strings.Join(st.Bots, "\n")
	}
	return fmt.Sprintf("👥 User Count: %d\n👥 Total User Count: %d\n🤖 Bot Count: %d\n\nRegistered Bots:\n%s",
		st.Users, st.TotalUsers, len(st.Bots), bots)
}

func (f *Frontend) logs(u platform.Update) platform.Reply {
	if _, err := os.Stat(f.logFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("log file unreadable", zap.String("path", f.logFile), zap.Error(err))
		}
		return platform.ReplyTo(u, msgNoLogs)
	}
	r := platform.ReplyTo(u, "")
	r.Document = f.logFile
	return r
}

func (f *Frontend) admit(ctx context.Context, u platform.Update) platform.Reply {
	res := f.admitter.Admit(ctx, u.Text, u.UserID)

	switch res.Outcome {
	case manager.Started:
		r := platform.ReplyTo(u, msgStarted)
		name := strings.TrimPrefix(res.Handle, "@")
		r.Button = &platform.URLButton{Text: "Start Bot", URL: "https://t.me/" + name}
		return r
	case manager.NoCredentialFound:
		return platform.ReplyTo(u, msgNoCredential)
	case manager.AlreadyRunning:
		return platform.ReplyTo(u, msgAlreadyRun)
	case manager.DirectoryUnavailable:
		f.logger.Error("admission aborted", zap.Int64("user", u.UserID), zap.Error(res.Err))
		return platform.ReplyTo(u, msgUnavailable)
	}
	f.logger.Error("error in bot creation", zap.Int64("user", u.UserID), zap.Error(res.Err))
	return platform.ReplyTo(u, msgFailed)
}
