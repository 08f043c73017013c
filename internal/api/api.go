package api

import (
	"context"

	"go.uber.org/zap"

	"clonebot/internal/config"
	"clonebot/internal/manager"
	"clonebot/internal/model"
)

// TenantManager is what the admin API drives.
type TenantManager interface {
	Admit(ctx context.Context, text string, userID int64) manager.Result
	Stats(ctx context.Context) (manager.Stats, error)
	Tenants(ctx context.Context) ([]model.Tenant, error)
	Reconcile(ctx context.Context) (int, error)
}

type API struct {
	TenantMgr TenantManager
	Cfg       *config.Config
	logger    *zap.Logger
}

func NewAPI(tm TenantManager, cfg *config.Config, logger *zap.Logger) *API {
	return &API{
		TenantMgr: tm,
		Cfg:       cfg,
		logger:    logger.Named("api"),
	}
}
