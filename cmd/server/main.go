package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fieldvault/fieldvault/internal/api"
	"github.com/fieldvault/fieldvault/internal/app"
	"github.com/fieldvault/fieldvault/internal/app/maintenance"
	"github.com/fieldvault/fieldvault/internal/cache"
	"github.com/fieldvault/fieldvault/internal/database"
	"github.com/fieldvault/fieldvault/internal/fieldcrypt"
	"github.com/fieldvault/fieldvault/internal/keys"
	"github.com/fieldvault/fieldvault/internal/services"
	"github.com/fieldvault/fieldvault/pkg/crypto"
	"github.com/fieldvault/fieldvault/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fieldvault-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	secret, err := app.DecodeSecret(cfg.Crypto.Secret)
	if err != nil {
		return fmt.Errorf("decode crypto secret: %w", err)
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	cacheStore := initialiseCache(cfg, db, log)
	defer func() {
		if rc, ok := cacheStore.(*cache.RedisClient); ok && rc != nil {
			_ = rc.Close()
		}
	}()

	recordStore, err := keys.NewGormStore(db)
	if err != nil {
		return fmt.Errorf("initialise key store: %w", err)
	}

	params := crypto.DefaultPBKDF2Params()
	params.Iterations = cfg.Crypto.PBKDF2Iterations

	managerOpts := []keys.Option{
		keys.WithParams(params),
		keys.WithMaxAge(cfg.Crypto.KeyMaxAge),
		keys.WithWarningWindow(cfg.Crypto.RotationWarningWindow),
	}
	if cacheStore != nil {
		managerOpts = append(managerOpts, keys.WithCache(cacheStore))
	}

	manager, err := keys.NewManager(recordStore, secret, managerOpts...)
	if err != nil {
		return fmt.Errorf("initialise key manager: %w", err)
	}
	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("load encryption keys: %w", err)
	}

	codec := fieldcrypt.NewCodec(manager)
	fieldcrypt.RegisterSerializer(fieldcrypt.NewFieldAdapter(codec))

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}
	keySvc, err := services.NewKeyService(manager, auditSvc)
	if err != nil {
		return fmt.Errorf("initialise key service: %w", err)
	}
	cryptoSvc, err := services.NewCryptoService(codec, auditSvc)
	if err != nil {
		return fmt.Errorf("initialise crypto service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		sweeper := maintenance.NewSweeper(db, manager, auditSvc,
			maintenance.WithKeySchedule(cfg.Maintenance.KeySweepSchedule),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSweepSchedule),
		)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := sweeper.Stop()
			if err := sweeper.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown sweep failed", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(db, api.Services{
		Keys:   keySvc,
		Crypto: cryptoSvc,
		Audit:  auditSvc,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(app.DatabaseConfigFor(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// initialiseCache picks Redis when configured and reachable, falling
// back to the database-backed store so the fast path never blocks boot.
func initialiseCache(cfg *app.Config, db *gorm.DB, log *zap.Logger) cache.Store {
	if cfg.Cache.Redis.Enabled {
		client, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err == nil {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
			return client
		}
		log.Warn("redis unavailable; using database-backed cache", zap.Error(err))
	}
	return cache.NewDatabaseStore(db)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("close database", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
