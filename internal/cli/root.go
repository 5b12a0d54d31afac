// Package cli holds the membership command tree.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/karingamassive/membership-service/internal/config"
	"github.com/karingamassive/membership-service/internal/di"
	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/service"
)

// adminBackend is what the operator commands need from the wired services.
type adminBackend interface {
	Bootstrap(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	SetStatus(ctx context.Context, actorID, targetID uint, status domain.Status) (*domain.User, error)
	Close() error
}

type runtime struct {
	loadConfig func() (*config.Config, error)
	openAdmin  func(ctx context.Context, cfg *config.Config) (adminBackend, error)
	serve      func(ctx context.Context, cfg *config.Config) error
}

func defaultRuntime() *runtime {
	return &runtime{
		loadConfig: config.Load,
		openAdmin: func(ctx context.Context, cfg *config.Config) (adminBackend, error) {
			logger := observability.NewLogger(os.Stderr, cfg.LogLevel, nil)
			return di.InitializeAdminTools(ctx, cfg, logger)
		},
		serve: func(ctx context.Context, cfg *config.Config) error {
			a, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultRuntime())
}

func newRootCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "membership",
		Short:         "Membership authentication and account service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand(rt))
	cmd.AddCommand(newAdminCommand(rt))
	return cmd
}

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			return rt.serve(cmd.Context(), cfg)
		},
	}
}

func fail(err error) {
	slog.Error("command failed", "error", err)
	os.Exit(1)
}

// Execute runs the command tree with ctx and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fail(err)
	}
}
