package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"diet-chat/config"
	"diet-chat/handlers"
	"diet-chat/logging"
	"diet-chat/pipeline"
	"diet-chat/profile"
	"diet-chat/render"
	"diet-chat/services"
	"diet-chat/storage"
	"diet-chat/workflows"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(cfg.Storage.Namespace), nil
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.Storage.DSN, cfg.Storage.Namespace)
	default:
		return storage.OpenSQLite(ctx, cfg.Storage.DSN, cfg.Storage.Namespace)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	kv, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	defer kv.Close()
	logger.Info("Storage ready", zap.String("driver", cfg.Storage.Driver))

	profiles := profile.NewStore(kv, logger)
	renderer := render.New()

	var opts []pipeline.Option
	if cfg.DBOS.Enabled {
		// Register workflows with DBOS (must be before Launch)
		dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
			DatabaseURL: cfg.Storage.DSN,
			AppName:     cfg.Storage.Namespace,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize DBOS: %w", err)
		}
		wf := workflows.NewProfileWorkflows(profiles, logger)
		wf.Register(dbosCtx)
		if err := dbos.Launch(dbosCtx); err != nil {
			return fmt.Errorf("failed to launch DBOS: %w", err)
		}
		defer dbos.Shutdown(dbosCtx, 5*time.Second)
		opts = append(opts, pipeline.WithProfileSaver(workflows.NewDurableSaver(dbosCtx, wf)))
		logger.Info("DBOS initialized - durable profile saves enabled")
	}

	var conv *pipeline.Conversation
	model, err := services.NewModel(ctx, cfg)
	switch {
	case errors.Is(err, services.ErrMissingCredential):
		logger.Error("Chat disabled: no API key", zap.String("provider", cfg.LLM.Provider), zap.String("env", cfg.APIKeyEnv()))
		conv = pipeline.Disabled(err, profiles, renderer, logger)
	case err != nil:
		return err
	default:
		sessions := services.NewSessionManager(model, pipeline.SystemInstruction, logger)
		conv = pipeline.New(ctx, sessions, profiles, renderer, logger, opts...)
		logger.Info("Chat model ready", zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))
	}

	router := newRouter(cfg, conv, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(cfg *config.Config, conv *pipeline.Conversation, logger *zap.Logger) *gin.Engine {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(logger), handlers.CORS())

	handlers.NewChatHandler(conv, logger).Register(router.Group("/api"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "dbos": cfg.DBOS.Enabled, "ready": conv.Status().Ready})
	})

	// Serve static files
	router.Static("/static", cfg.Static.Dir)
	router.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.Static.Dir, "index.html"))
	})
	return router
}
