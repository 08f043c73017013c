// Package platform is the messaging platform contract consumed by the
// supervisor and the bot front-ends, plus its Telegram implementation.
package platform

import (
	"context"
	"strings"
)

// Command is one entry of a bot's command menu.
type Command struct {
	Name        string
	Description string
}

// Identity is what the platform reports about an authenticated bot.
type Identity struct {
	UserID   int64
	Username string
}

// Handle returns the public "@name" form of the bot username.
func (i Identity) Handle() string {
	return "@" + strings.TrimPrefix(i.Username, "@")
}

// Update is an inbound message delivered to a session.
type Update struct {
	UpdateID  int
	ChatID    int64
	MessageID int
	UserID    int64
	Text      string
	Command   string
	Args      string
	Private   bool
}

// IsCommand reports whether the update carries a /command.
func (u Update) IsCommand() bool { return u.Command != "" }

type URLButton struct {
	Text string
	URL  string
}

// Reply is an outbound message. When Document is set it is sent as a file
// and Text becomes the caption.
type Reply struct {
	ChatID   int64
	ReplyTo  int
	Text     string
	Button   *URLButton
	Document string
}

// Session is an authenticated client bound to one bot token.
type Session interface {
	SetCommands(ctx context.Context, cmds []Command) error
	Self(ctx context.Context) (Identity, error)
	// Updates starts receiving and returns the delivery channel. The channel
	// is closed after Close.
	Updates() <-chan Update
	Send(ctx context.Context, r Reply) error
	Close() error
}

// Dialer opens sessions. name identifies the session in logs.
type Dialer interface {
	Open(ctx context.Context, name, token string) (Session, error)
}

// ReplyTo builds a text reply to u.
func ReplyTo(u Update, text string) Reply {
	return Reply{ChatID: u.ChatID, ReplyTo: u.MessageID, Text: text}
}
