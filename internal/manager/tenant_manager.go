// internal/manager/tenant_manager.go
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"clonebot/internal/credential"
	"clonebot/internal/messaging"
	"clonebot/internal/metrics"
	"clonebot/internal/model"
	"clonebot/internal/platform"
	"clonebot/internal/storage"
	"clonebot/internal/supervisor"
)

// ErrDirectoryUnavailable wraps every tenant directory failure seen during
// admission. Such a failure is never read as "not a duplicate".
var ErrDirectoryUnavailable = errors.New("tenant directory unavailable")

// Spawner starts tenant instances.
type Spawner interface {
	Start(ctx context.Context, token string) (*supervisor.Instance, error)
}

// Runtime owns running sessions after admission.
type Runtime interface {
	Adopt(t model.Tenant, session platform.Session) error
	Release(token string) bool
	Running(token string) bool
	Tokens() []string
}

type Options struct {
	SpawnTimeout       time.Duration
	MaxConcurrentSpawn int
}

type TenantManager struct {
	dir     storage.Directory
	spawner Spawner
	runtime Runtime
	events  messaging.Publisher
	logger  *zap.Logger

	guard        *admissionGuard
	spawnSlots   *semaphore.Weighted
	spawnTimeout time.Duration
	now          func() time.Time
}

func NewTenantManager(
	dir storage.Directory,
	spawner Spawner,
	runtime Runtime,
	events messaging.Publisher,
	opts Options,
	logger *zap.Logger,
) *TenantManager {
	if events == nil {
		events = messaging.NopPublisher{}
	}
	tm := &TenantManager{
		dir:          dir,
		spawner:      spawner,
		runtime:      runtime,
		events:       events,
		logger:       logger.Named("admission"),
		guard:        newAdmissionGuard(),
		spawnTimeout: opts.SpawnTimeout,
		now:          time.Now,
	}
	if opts.MaxConcurrentSpawn > 0 {
		tm.spawnSlots = semaphore.NewWeighted(int64(opts.MaxConcurrentSpawn))
	}
	return tm
}

// Admit runs one admission request end to end: extract a token from text,
// reject duplicates, start the instance, register it and hand it to the
// runtime. The caller's cancellation does not reach the spawn; only the
// configured spawn timeout bounds it.
func (tm *TenantManager) Admit(ctx context.Context, text string, userID int64) Result {
	res := tm.admit(ctx, text, userID)
	metrics.Admissions.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (tm *TenantManager) admit(ctx context.Context, text string, userID int64) Result {
	token, ok := credential.Extract(text)
	if !ok {
		return Result{Outcome: NoCredentialFound}
	}
	log := tm.logger.With(zap.String("token", credential.Redact(token)), zap.Int64("user", userID))

	if !tm.guard.TryAcquire(token) {
		log.Info("admission already in progress")
		return Result{Outcome: AlreadyRunning}
	}
	defer tm.guard.Release(token)

	ctx = context.WithoutCancel(ctx)
	if tm.spawnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tm.spawnTimeout)
		defer cancel()
	}

	exists, err := tm.dir.Exists(ctx, model.SetTokens, token)
	if err != nil {
		log.Error("duplicate check failed", zap.Error(err))
		return Result{Outcome: DirectoryUnavailable, Err: fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)}
	}
	if exists {
		return Result{Outcome: AlreadyRunning}
	}

	inst, err := tm.spawn(ctx, token)
	if err != nil {
		stage := supervisor.StageOf(err)
		if stage == "" {
			stage = "slot"
		}
		metrics.SpawnFailures.WithLabelValues(string(stage)).Inc()
		log.Error("bot creation failed", zap.String("stage", string(stage)), zap.Error(err))

		ev := model.NewEvent(model.EventSpawnFailed, "", userID)
		ev.Reason = string(stage)
		tm.publish(ctx, ev)
		return Result{Outcome: Failed, Err: err}
	}

	tenant := model.Tenant{
		ID:        uuid.New(),
		Token:     token,
		Handle:    inst.Handle,
		BotUserID: inst.BotUserID,
		OwnerID:   userID,
		CreatedAt: tm.now().UTC(),
	}
	if err := tm.dir.RegisterTenant(ctx, tenant); err != nil {
		// The instance is live but untracked; stop it rather than leave an orphan.
		log.Error("registration failed, stopping started instance",
			zap.String("handle", inst.Handle), zap.Error(err))
		if cerr := inst.Session.Close(); cerr != nil {
			log.Warn("closing orphaned session", zap.Error(cerr))
		}
		ev := model.NewEvent(model.EventOrphaned, inst.Handle, userID)
		ev.Reason = err.Error()
		tm.publish(ctx, ev)
		return Result{Outcome: DirectoryUnavailable, Handle: inst.Handle, Err: fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)}
	}

	if err := tm.runtime.Adopt(tenant, inst.Session); err != nil {
		// Registered but not running here; Recover picks it up on restart.
		log.Warn("runtime refused session", zap.String("handle", inst.Handle), zap.Error(err))
		_ = inst.Session.Close()
	}

	log.Info("new bot created", zap.String("handle", tenant.Handle), zap.String("tenant_id", tenant.ID.String()))
	tm.publish(ctx, model.NewEvent(model.EventAdmitted, tenant.Handle, userID))
	return Result{Outcome: Started, Handle: tenant.Handle}
}

func (tm *TenantManager) spawn(ctx context.Context, token string) (*supervisor.Instance, error) {
	if tm.spawnSlots != nil {
		if err := tm.spawnSlots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for spawn slot: %w", err)
		}
		defer tm.spawnSlots.Release(1)
	}

	start := time.Now()
	defer func() { metrics.SpawnDuration.Observe(time.Since(start).Seconds()) }()
	return tm.spawner.Start(ctx, token)
}

func (tm *TenantManager) publish(ctx context.Context, ev model.Event) {
	if err := tm.events.Publish(ctx, ev); err != nil {
		tm.logger.Warn("event not published", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// Recover restarts every registered tenant that is not running, e.g. after a
// process restart. Tenants that fail to start are logged and skipped.
func (tm *TenantManager) Recover(ctx context.Context) (int, error) {
	tenants, err := tm.dir.ListTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	recovered := 0
	for _, t := range tenants {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		if tm.runtime.Running(t.Token) || !tm.guard.TryAcquire(t.Token) {
			continue
		}
		if tm.recoverOne(ctx, t) {
			recovered++
		}
		tm.guard.Release(t.Token)
	}

	tm.logger.Info("recovery finished", zap.Int("tenants", len(tenants)), zap.Int("recovered", recovered))
	return recovered, nil
}

func (tm *TenantManager) recoverOne(ctx context.Context, t model.Tenant) bool {
	log := tm.logger.With(zap.String("tenant", t.Handle))

	spawnCtx := ctx
	if tm.spawnTimeout > 0 {
		var cancel context.CancelFunc
		spawnCtx, cancel = context.WithTimeout(ctx, tm.spawnTimeout)
		defer cancel()
	}

	inst, err := tm.spawn(spawnCtx, t.Token)
	if err != nil {
		log.Warn("failed to recover tenant", zap.Error(err))
		return false
	}
	if err := tm.runtime.Adopt(t, inst.Session); err != nil {
		_ = inst.Session.Close()
		return false
	}

	log.Info("recovered tenant")
	tm.publish(ctx, model.NewEvent(model.EventRecovered, t.Handle, t.OwnerID))
	return true
}

// Reconcile stops running sessions whose token the directory does not know.
// It returns the number of sessions released.
func (tm *TenantManager) Reconcile(ctx context.Context) (int, error) {
	released := 0
	for _, token := range tm.runtime.Tokens() {
		exists, err := tm.dir.Exists(ctx, model.SetTokens, token)
		if err != nil {
			return released, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
		}
		if exists || !tm.guard.TryAcquire(token) {
			continue
		}
		if tm.runtime.Release(token) {
			released++
			metrics.OrphansReleased.Inc()
			tm.logger.Warn("released untracked session", zap.String("token", credential.Redact(token)))
			ev := model.NewEvent(model.EventReleased, "", 0)
			ev.Reason = "token missing from directory"
			tm.publish(ctx, ev)
		}
		tm.guard.Release(token)
	}
	return released, nil
}

// Stats is a snapshot of the directory's sets.
type Stats struct {
	Users      int      `json:"users"`
	TotalUsers int      `json:"total_users"`
	Bots       []string `json:"bots"`
	Running    int      `json:"running"`
}

func (tm *TenantManager) Stats(ctx context.Context) (Stats, error) {
	users, err := tm.dir.List(ctx, model.SetUsers)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	totalUsers, err := tm.dir.List(ctx, model.SetTotalUsers)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	bots, err := tm.dir.List(ctx, model.SetBots)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return Stats{
		Users:      len(users),
		TotalUsers: len(totalUsers),
		Bots:       bots,
		Running:    len(tm.runtime.Tokens()),
	}, nil
}

// Tenants lists registered tenant records.
func (tm *TenantManager) Tenants(ctx context.Context) ([]model.Tenant, error) {
	tenants, err := tm.dir.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return tenants, nil
}

// RegisterUser records a parent-bot user. Repeated calls are harmless.
func (tm *TenantManager) RegisterUser(ctx context.Context, userID int64) error {
	if err := tm.dir.Insert(ctx, model.SetUsers, fmt.Sprint(userID)); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return nil
}
