package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankid-auth/internal/app"
	"bankid-auth/internal/auth/apiclient"
	"bankid-auth/internal/config"
	"bankid-auth/internal/db"
	"bankid-auth/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bankid-auth",
		Short:         "BankID authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve()
			},
		},
		&cobra.Command{
			Use:   "clients",
			Short: "List all registered API clients",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), func(store apiclient.Store) error {
					return listClients(cmd.Context(), store, cmd.OutOrStdout())
				})
			},
		},
		newCreateClientCmd(),
		newSecretHashCmd(),
	)
	return root
}

func newCreateClientCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create-client",
		Short: "Register a new API client with a random secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			return withStore(cmd.Context(), func(store apiclient.Store) error {
				return createClient(cmd.Context(), store, name, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Client name")
	return cmd
}

func newSecretHashCmd() *cobra.Command {
	var asURL bool
	cmd := &cobra.Command{
		Use:   "secret-hash <client-id>",
		Short: "Generate a secret hash for a client using the current time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store apiclient.Store) error {
				return secretHash(cmd.Context(), store, args[0], time.Now(), asURL, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&asURL, "url", false, "Present output in URL-encoded format")
	return cmd
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.AppEnv, Level: cfg.LogLevel, Service: "bankid-auth"})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize app", map[string]any{
			"error": err,
		})
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatal("http server failed", map[string]any{
				"error": err,
			})
		}
	}()

	logger.Info("bankid-auth started", map[string]any{
		"port": cfg.AppPort,
	})

	<-ctx.Done() // wait for Ctrl+C

	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("graceful shutdown failed", map[string]any{
			"error": err,
		})
	}

	logger.Info("bankid-auth stopped cleanly", nil)
	return nil
}

// withStore opens the database for a management command.
func withStore(ctx context.Context, fn func(apiclient.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database.DB); err != nil {
		return err
	}
	return fn(apiclient.NewPostgresStore(database))
}
