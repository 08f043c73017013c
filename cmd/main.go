package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clonebot/internal/api"
	"clonebot/internal/auth"
	"clonebot/internal/config"
	"clonebot/internal/consumer"
	"clonebot/internal/frontend"
	"clonebot/internal/logging"
	"clonebot/internal/manager"
	"clonebot/internal/messaging"
	"clonebot/internal/metrics"
	"clonebot/internal/platform"
	"clonebot/internal/storage"
	"clonebot/internal/supervisor"
	"clonebot/internal/tenantbot"
	"clonebot/internal/worker"
)

const queueDepthInterval = 10 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "clonebot",
		Short: "Parent bot that clones content-saver bots from user-supplied tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(serveCmd(), tokenCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the parent bot, its clones and the HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		operator int64
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for the operator admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			auth.SetSecret(cfg.Auth.JWTSecret)

			tok, err := auth.GenerateToken(operator, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&operator, "operator", 0, "operator id embedded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

// @title Clonebot Operator API
// @version 1.0
// @description Admin API of the bot cloning service
// @host localhost:9090
// @BasePath /
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func serve(parent context.Context) error {
	// Init Metrics
	metrics.Init()

	// Load Configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("configuration loaded", zap.String("driver", cfg.Database.Driver))

	// Setup JWT Secret
	adminAPI := cfg.Auth.JWTSecret != ""
	if adminAPI {
		auth.SetSecret(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("auth.jwt_secret not set, operator API disabled")
	}

	// Tenant directory
	dir, err := storage.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open tenant directory: %w", err)
	}
	defer dir.Close()

	// Lifecycle events
	var (
		events messaging.Publisher = messaging.NopPublisher{}
		rabbit *messaging.RabbitClient
	)
	if cfg.RabbitMQ.URL != "" {
		rabbit, err = messaging.NewRabbitClient(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer rabbit.Close()
		events = rabbit
		logger.Info("RabbitMQ connected", zap.String("queue", rabbit.Queue()))
	}

	dialer := platform.NewTelegramDialer(cfg.Telegram.APIEndpoint, cfg.Telegram.PollTimeout, logger)
	sup := supervisor.New(dialer, tenantbot.CommandTable, logger)

	children := tenantbot.New(dir, cfg.Telegram.SourceURL, logger)
	registry := consumer.NewRegistry(cfg.Workers, children.Handler, logger)
	defer registry.ShutdownAll()

	tm := manager.NewTenantManager(dir, sup, registry, events, manager.Options{
		SpawnTimeout:       cfg.Admission.SpawnTimeout,
		MaxConcurrentSpawn: cfg.Admission.MaxConcurrentSpawn,
	}, logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recover Existing Tenants
	if cfg.Admission.RecoverOnStart {
		if _, err := tm.Recover(ctx); err != nil {
			logger.Error("failed to recover tenants", zap.Error(err))
		}
	}

	// Parent bot
	parentSession, err := startParent(ctx, dialer, cfg, logger)
	if err != nil {
		return err
	}
	fe := frontend.New(tm, cfg.IsAdmin, cfg.Logging.File, logger)
	parentPool := worker.NewWorkerPool("parent", cfg.Workers, fe.Handler(parentSession), logger)
	parentConsumer := consumer.StartConsumer("parent", parentSession, parentPool, logger)
	defer parentConsumer.Stop()

	a := api.NewAPI(tm, cfg, logger)
	servers := []*http.Server{{Addr: cfg.HealthAddr(), Handler: a.HealthRouter()}}
	if adminAPI {
		servers = append(servers, &http.Server{Addr: cfg.Server.AdminAddr, Handler: a.AdminRouter()})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	if rabbit != nil {
		g.Go(func() error {
			every(gctx, queueDepthInterval, rabbit.UpdateQueueDepth)
			return nil
		})
	}

	if cfg.Admission.ReconcileInterval > 0 {
		g.Go(func() error {
			every(gctx, cfg.Admission.ReconcileInterval, func() {
				if _, err := tm.Reconcile(gctx); err != nil {
					logger.Warn("reconcile failed", zap.Error(err))
				}
			})
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-parentConsumer.Done():
			logger.Error("parent bot stopped receiving updates")
			stop()
		}
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("graceful shutdown complete")
	return err
}

func startParent(ctx context.Context, dialer platform.Dialer, cfg *config.Config, logger *zap.Logger) (platform.Session, error) {
	session, err := dialer.Open(ctx, "parent", cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to start parent bot: %w", err)
	}
	if err := session.SetCommands(ctx, frontend.CommandTable.Commands); err != nil {
		logger.Warn("failed to register parent commands", zap.Error(err))
	}
	self, err := session.Self(ctx)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to identify parent bot: %w", err)
	}
	logger.Info("parent bot is running", zap.String("handle", self.Handle()))
	return session, nil
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
