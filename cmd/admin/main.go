package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adamscao/captionapi/internal/auth"
	"github.com/adamscao/captionapi/internal/config"
	"github.com/adamscao/captionapi/internal/db"
	"github.com/adamscao/captionapi/internal/db/repository"
	"github.com/adamscao/captionapi/internal/logging"
	"github.com/adamscao/captionapi/internal/mailer"
	"github.com/adamscao/captionapi/internal/models"
	"github.com/adamscao/captionapi/internal/policy"
	"github.com/adamscao/captionapi/internal/service"
)

// app holds what every subcommand needs once the database is open
type app struct {
	cfg      *config.Config
	database *db.DB
	accounts *service.AccountService
	audit    *repository.AuditRepository
	users    *repository.UserRepository
	logger   *zap.Logger
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	return a.database.Close()
}

// newCLILogger uses the server's sinks but only passes warnings and errors,
// so that command output stays readable.
func newCLILogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Level == "debug" || cfg.Level == "info" {
		cfg.Level = "warn"
	}
	return logging.New(cfg)
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newCLILogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.RunMigrations(ctx, database); err != nil {
		database.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	users := repository.NewUserRepository(database.DB, cfg.Quota.InitialCalls)
	stats := repository.NewEndpointStatsRepository(database.DB)

	accounts := service.NewAccountService(cfg, service.Deps{
		Users:     users,
		Stats:     stats,
		Hasher:    auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Tokens:    auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer),
		Validator: policy.NewValidator(cfg),
		Mailer:    mailer.NewLogMailer(cfg.Client.URL, logger),
		Logger:    logger,
	})

	return &app{
		cfg:      cfg,
		database: database,
		accounts: accounts,
		audit:    repository.NewAuditRepository(database.DB),
		users:    users,
		logger:   logger,
	}, nil
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "captionapi administration tool",
		Long:          "Administrative tool for managing captionapi users, quotas, endpoint stats and audit logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file path")

	// withApp opens the database for the duration of one command
	withApp := func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, args, a)
		}
	}

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	userCmd.AddCommand(
		newUserCreateCmd(withApp),
		newUserListCmd(withApp),
		newUserPromoteCmd(withApp),
		newUserDeleteCmd(withApp),
	)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect audit logs",
	}
	auditCmd.AddCommand(newAuditListCmd(withApp))

	rootCmd.AddCommand(userCmd, auditCmd, newStatsCmd(withApp))
	return rootCmd
}

type appRunner func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error

func newUserCreateCmd(withApp appRunner) *cobra.Command {
	var (
		email    string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			user, err := a.accounts.AdminCreateUser(cmd.Context(), email, password, models.Role(role))
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ User created successfully\n")
			fmt.Fprintf(out, "  ID:        %d\n", user.ID)
			fmt.Fprintf(out, "  Email:     %s\n", user.Email)
			fmt.Fprintf(out, "  Role:      %s\n", user.Role)
			fmt.Fprintf(out, "  API calls: %d\n", a.cfg.Quota.InitialCalls)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (required)")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleUser), "Role: user or admin")

	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newUserListCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			users, err := a.accounts.AdminListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			rows := make([][]any, 0, len(users))
			for _, u := range users {
				rows = append(rows, []any{u.ID, u.Email, string(u.Role), u.APICount})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "Email", "Role", "API Calls"}, rows)
		}),
	}
}

func newUserPromoteCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <user-id>",
		Short: "Grant the admin role to a user",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			user, err := a.accounts.AdminPromoteUser(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to promote user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is now %s\n", user.Email, user.Role)
			return nil
		}),
	}
}

func newUserDeleteCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user and its quota",
		Long:  "Delete a user and its quota. The command acts as the configured super admin, so the super admin account itself cannot be removed.",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			user, err := a.accounts.AdminDeleteUser(cmd.Context(), a.cfg.Admin.SuperAdminEmail, id)
			if err != nil {
				return fmt.Errorf("failed to delete user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted user %d (%s)\n", user.ID, user.Email)
			return nil
		}),
	}
}

func newStatsCmd(withApp appRunner) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-endpoint request counts",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()

			stats, err := a.accounts.AdminGetEndpointStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to load endpoint stats: %w", err)
			}

			rows := make([][]any, 0, len(stats))
			for _, s := range stats {
				rows = append(rows, []any{s.Method, s.Endpoint, s.Requests})
			}

			out := cmd.OutOrStdout()
			if err := printTable(out, []string{"Method", "Endpoint", "Requests"}, rows); err != nil {
				return err
			}

			total, err := a.users.Count(ctx)
			if err != nil {
				return fmt.Errorf("failed to count users: %w", err)
			}
			failed, err := a.audit.CountByAction(ctx, models.ActionLoginFailed, time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("failed to count failed logins: %w", err)
			}

			fmt.Fprintf(out, "\nUsers: %d\n", total)
			fmt.Fprintf(out, "Failed logins (last %s): %d\n", since, failed)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window for failed login count")
	return cmd
}

func newAuditListCmd(withApp appRunner) *cobra.Command {
	var (
		email  string
		action string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit log entries",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			logs, err := a.audit.List(cmd.Context(), email, action, limit)
			if err != nil {
				return fmt.Errorf("failed to list audit logs: %w", err)
			}

			rows := make([][]any, 0, len(logs))
			for _, l := range logs {
				status := "ok"
				if !l.Success {
					status = "failed"
				}
				rows = append(rows, []any{
					l.ID,
					l.Timestamp.Format(time.RFC3339),
					l.Action,
					l.Email,
					l.ClientIP,
					status,
					l.ErrorMsg,
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "Time", "Action", "Email", "Client IP", "Status", "Error"}, rows)
		}),
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Filter by email")
	cmd.Flags().StringVarP(&action, "action", "a", "", "Filter by action")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")

	return cmd
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
