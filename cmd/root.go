// Package cmd defines the CLI commands for the leadpipe executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/config"
	"github.com/JakeFAU/leadpipe/internal/finder"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/logging"
	"github.com/JakeFAU/leadpipe/internal/qualifier"
	"github.com/JakeFAU/leadpipe/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the application. Tests inject a
// fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context)
	Logger() *zap.Logger
	SearchAndQualify(ctx context.Context, types []lead.SourceType) (finder.Summary, error)
	Qualify(ctx context.Context, leadID string) (qualifier.Result, error)
	QualifyNew(ctx context.Context) (int, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, configPath string) (App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "leadpipe",
		Short: "Finds, scores, and drafts outreach for freelance web development leads.",
		Long: `leadpipe searches Telegram channels, freelance platforms, forums, and
classifieds for people asking for a website, deduplicates what it finds,
scores each lead with deterministic rules plus an AI signal, and tracks
leads through the sales funnel behind a JSON API.`,
		SilenceUsage: true,

		// Builds the app once flags are parsed and hands it to the subcommand
		// through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (LEADPIPE_* env vars override it)")

	cmd.AddCommand(newServeCmd(), newSearchCmd(), newQualifyCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	if ctx == nil {
		return nil, errors.New("command context is nil")
	}
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application is not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
