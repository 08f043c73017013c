// Package platformtest provides in-memory platform sessions for tests.
package platformtest

import (
	"context"
	"strings"
	"sync"

	"clonebot/internal/platform"
)

// Session is a scriptable platform.Session.
type Session struct {
	Identity       platform.Identity
	SetCommandsErr error
	SelfErr        error
	SendErr        error

	mu        sync.Mutex
	commands  []platform.Command
	sent      []platform.Reply
	closes    int
	updates   chan platform.Update
	closeOnce sync.Once
}

func NewSession(username string, userID int64) *Session {
	return &Session{
		Identity: platform.Identity{UserID: userID, Username: username},
		updates:  make(chan platform.Update, 16),
	}
}

func (s *Session) SetCommands(ctx context.Context, cmds []platform.Command) error {
	if s.SetCommandsErr != nil {
		return s.SetCommandsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append([]platform.Command(nil), cmds...)
	return nil
}

func (s *Session) Self(ctx context.Context) (platform.Identity, error) {
	if s.SelfErr != nil {
		return platform.Identity{}, s.SelfErr
	}
	return s.Identity, nil
}

func (s *Session) Updates() <-chan platform.Update { return s.updates }

func (s *Session) Send(ctx context.Context, r platform.Reply) error {
	if s.SendErr != nil {
		return s.SendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, r)
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.updates) })
	return nil
}

// Push delivers u to the session's update channel. It must not be called
// after Close.
func (s *Session) Push(u platform.Update) {
	s.updates <- u
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}

func (s *Session) Commands() []platform.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.Command(nil), s.commands...)
}

func (s *Session) Replies() []platform.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.Reply(nil), s.sent...)
}

// Dialer hands out Sessions. Unknown tokens get a session whose username is
// derived from the token.
type Dialer struct {
	OpenErr error

	// Hook, when set, runs before every Open.
	Hook func(ctx context.Context, token string)

	mu       sync.Mutex
	sessions map[string]*Session
	opened   []string
}

func NewDialer() *Dialer {
	return &Dialer{sessions: make(map[string]*Session)}
}

// Script registers the session returned for token.
func (d *Dialer) Script(token string, s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[token] = s
}

func (d *Dialer) Open(ctx context.Context, name, token string) (platform.Session, error) {
	if d.Hook != nil {
		d.Hook(ctx, token)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, token)

	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := d.sessions[token]
	if !ok {
		id, _, _ := strings.Cut(token, ":")
		s = NewSession("bot"+id, 0)
		d.sessions[token] = s
	}
	return s, nil
}

// Opened returns every token passed to Open, in call order.
func (d *Dialer) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

// Session returns the session handed out for token, if any.
func (d *Dialer) Session(token string) *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[token]
}
