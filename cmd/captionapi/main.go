package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/adamscao/captionapi/internal/api"
	"github.com/adamscao/captionapi/internal/auth"
	"github.com/adamscao/captionapi/internal/config"
	"github.com/adamscao/captionapi/internal/db"
	"github.com/adamscao/captionapi/internal/db/repository"
	"github.com/adamscao/captionapi/internal/logging"
	"github.com/adamscao/captionapi/internal/mailer"
	"github.com/adamscao/captionapi/internal/policy"
	"github.com/adamscao/captionapi/internal/service"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("captionapi\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("captionapi stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting captionapi", zap.String("version", Version), zap.String("commit", Commit))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	logger.Info("opening database", zap.String("path", cfg.Database.Path))
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	// Run migrations
	version, err := db.RunMigrations(ctx, database)
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", zap.Int64("version", version))

	// Initialize repositories
	userRepo := repository.NewUserRepository(database.DB, cfg.Quota.InitialCalls)
	statsRepo := repository.NewEndpointStatsRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	mail, err := mailer.New(cfg, logger)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer)

	accounts := service.NewAccountService(cfg, service.Deps{
		Users:     userRepo,
		Stats:     statsRepo,
		Hasher:    auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Tokens:    tokens,
		Validator: policy.NewValidator(cfg),
		Mailer:    mail,
		Logger:    logger,
	})

	created, err := accounts.EnsureSuperAdmin(ctx, cfg.Admin.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("failed to bootstrap super admin: %w", err)
	}
	if created {
		logger.Info("super admin account created", zap.String("email", logging.MaskEmail(cfg.Admin.SuperAdminEmail)))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Create HTTP server
	server, err := api.NewServer(cfg, api.Deps{
		Accounts:  accounts,
		Tokens:    tokens,
		Ledger:    statsRepo,
		AuditRepo: auditRepo,
		Logger:    logger,
		Registry:  registry,
	})
	if err != nil {
		return err
	}

	if err := server.Run(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
