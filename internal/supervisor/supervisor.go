// Package supervisor starts isolated child bot sessions. It never touches the
// tenant directory; registration is the caller's job after a successful start.
package supervisor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"clonebot/internal/credential"
	"clonebot/internal/platform"
)

// Stage identifies the start step that failed.
type Stage string

const (
	StageAuthOrConnect       Stage = "auth_or_connect"
	StageCommandRegistration Stage = "command_registration"
	StageIdentityFetch       Stage = "identity_fetch"
)

// SpawnError is returned by Start. None of the stages are retried.
type SpawnError struct {
	Stage Stage
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn failed at %s: %v", e.Stage, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StageOf returns the failed stage of err, or "" if err is not a SpawnError.
func StageOf(err error) Stage {
	var se *SpawnError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// CommandTable is the versioned command menu installed on every child.
type CommandTable struct {
	Version  string
	Commands []platform.Command
}

// Instance is a started child session that has not been handed off yet.
type Instance struct {
	Token       string
	SessionName string
	Handle      string
	BotUserID   int64
	Session     platform.Session
}

type Supervisor struct {
	dialer   platform.Dialer
	commands CommandTable
	logger   *zap.Logger
}

func New(dialer platform.Dialer, commands CommandTable, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		dialer:   dialer,
		commands: commands,
		logger:   logger.Named("supervisor"),
	}
}

// Start opens a session for token, installs the command table and fetches
// the bot identity. On failure after the session was opened, the session is
// closed before returning.
func (s *Supervisor) Start(ctx context.Context, token string) (*Instance, error) {
	name := credential.SessionName(token)
	log := s.logger.With(zap.String("session", name), zap.String("token", credential.Redact(token)))

	session, err := s.dialer.Open(ctx, name, token)
	if err != nil {
		return nil, &SpawnError{Stage: StageAuthOrConnect, Err: err}
	}

	if err := session.SetCommands(ctx, s.commands.Commands); err != nil {
		s.teardown(log, session)
		return nil, &SpawnError{Stage: StageCommandRegistration, Err: err}
	}

	self, err := session.Self(ctx)
	if err != nil {
		s.teardown(log, session)
		return nil, &SpawnError{Stage: StageIdentityFetch, Err: err}
	}

	log.Info("instance started",
		zap.String("handle", self.Handle()),
		zap.String("commands_version", s.commands.Version),
	)
	return &Instance{
		Token:       token,
		SessionName: name,
		Handle:      self.Handle(),
		BotUserID:   self.UserID,
		Session:     session,
	}, nil
}

func (s *Supervisor) teardown(log *zap.Logger, session platform.Session) {
	if err := session.Close(); err != nil {
		log.Warn("closing half-started session", zap.Error(err))
	}
}
