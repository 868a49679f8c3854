package main

import (
	"context"
	"crypto/sha256"
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

	"github.com/evalforge/evalforge/internal/api"
	"github.com/evalforge/evalforge/internal/app"
	"github.com/evalforge/evalforge/internal/app/maintenance"
	iauth "github.com/evalforge/evalforge/internal/auth"
	"github.com/evalforge/evalforge/internal/database"
	"github.com/evalforge/evalforge/internal/identity"
	"github.com/evalforge/evalforge/internal/prolific"
	"github.com/evalforge/evalforge/internal/services"
	"github.com/evalforge/evalforge/internal/storage"
	"github.com/evalforge/evalforge/pkg/crypto"
	"github.com/evalforge/evalforge/pkg/logger"
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
	fs := flag.NewFlagSet("evalforge-server", flag.ContinueOnError)
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
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	vaultKey, err := deriveVaultKey(cfg.Vault.EncryptionKey)
	if err != nil {
		return fmt.Errorf("derive vault key: %w", err)
	}

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	var provider identity.Provider
	if strings.TrimSpace(cfg.Identity.BaseURL) != "" {
		client, idErr := identity.NewClient(identity.Config{
			BaseURL:   cfg.Identity.BaseURL,
			ProjectID: cfg.Identity.ProjectID,
			ServerKey: cfg.Identity.ServerKey,
			Timeout:   cfg.Identity.Timeout,
		})
		if idErr != nil {
			return fmt.Errorf("initialise identity client: %w", idErr)
		}
		provider = client
	} else {
		log.Warn("identity provider not configured; team mirroring disabled")
	}

	store, err := storage.NewClient(storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		Timeout:       cfg.Storage.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise storage client: %w", err)
	}

	deps, cleaner, err := buildServices(db, provider, store, vaultKey, cfg)
	if err != nil {
		return err
	}
	deps.JWT = jwtService

	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(deps)
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

func buildServices(db *gorm.DB, provider identity.Provider, store *storage.Client, vaultKey []byte, cfg *app.Config) (api.Dependencies, *maintenance.Cleaner, error) {
	var deps api.Dependencies

	access, err := services.NewAccessService(db)
	if err != nil {
		return deps, nil, fmt.Errorf("initialise access service: %w", err)
	}
	orgs, err := services.NewOrganizationService(db, provider, vaultKey)
	if err != nil {
		return deps, nil, fmt.Errorf("initialise organization service: %w", err)
	}
	members, err := services.NewMemberService(db, provider)
	if err != nil {
		return deps, nil, fmt.Errorf("initialise member service: %w", err)
	}
	invitations, err := services.NewInvitationService(db, provider)
	if err != nil {
		return deps, nil, fmt.Errorf("initialise invitation service: %w", err)
	}
	var prolificOpts []services.ProlificOption
	if base := strings.TrimSpace(cfg.Prolific.BaseURL); base != "" {
		prolificOpts = append(prolificOpts, services.WithClientFactory(func(token string) (*prolific.Client, error) {
			return prolific.NewClient(token, prolific.WithBaseURL(base))
		}))
	}
	prolificSvc, err := services.NewProlificService(db, access, vaultKey, cfg.Prolific.DefaultToken, prolificOpts...)
	if err != nil {
		return deps, nil, fmt.Errorf("initialise prolific service: %w", err)
	}
	videos, err := services.NewVideoService(db, store, access)
	if err != nil {
		return deps, nil, fmt.Errorf("initialise video service: %w", err)
	}
	tasks, err := services.NewTaskService(db, store, access)
	if err != nil {
		return deps, nil, fmt.Errorf("initialise task service: %w", err)
	}

	deps.Access = access
	deps.Organizations = orgs
	deps.Members = members
	deps.Invitations = invitations
	deps.Prolific = prolificSvc
	deps.Videos = videos
	deps.Tasks = tasks

	return deps, maintenance.NewCleaner(invitations), nil
}

// deriveVaultKey stretches the configured passphrase into a 32-byte AES key.
// The salt is fixed so the same configuration always yields the same key.
func deriveVaultKey(passphrase string) ([]byte, error) {
	passphrase = strings.TrimSpace(passphrase)
	if passphrase == "" {
		return nil, errors.New("vault.encryption_key must be configured")
	}

	salt := sha256.Sum256([]byte("evalforge.vault.v1"))
	return crypto.DeriveKeyArgon2id([]byte(passphrase), salt[:16], crypto.DefaultArgon2Params())
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
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database handle unavailable on shutdown", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}
