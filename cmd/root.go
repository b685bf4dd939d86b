// Package cmd defines and implements the CLI commands for the regwatch executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/app"
	"github.com/regwatch/regwatch/internal/config"
	"github.com/regwatch/regwatch/internal/ingest"
	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/matching"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the application. Tests inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Run(ctx context.Context) error
	Migrate(ctx context.Context) error
	RunIngestion(ctx context.Context) (ingest.RunSummary, error)
	MatchUpdate(ctx context.Context, updateID, ownerID string) ([]matching.Match, error)
	BulkMatchWatchList(
		ctx context.Context,
		watchListID, ownerID string,
		opts matching.BackfillOptions,
	) (matching.BackfillSummary, error)
	BackfillOptions() matching.BackfillOptions
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command and its subcommands. The returned func
// closes the application if a subcommand built one; cobra skips post-run hooks
// when RunE fails, so callers defer it instead.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile string
		built   App
	)
	cmd := &cobra.Command{
		Use:   "regwatch",
		Short: "Regulatory update ingestion and watch list matching.",
		Long: `regwatch collects regulatory publications from feeds and listing pages,
classifies them, stores one record per URL and matches every new record
against user watch lists, notifying owners and filing into dossiers.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); REGWATCH_* env vars override it")

	cmd.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newMatchCmd(),
		newBackfillCmd(),
		newMigrateCmd(),
	)
	closeApp := func() {
		if built != nil {
			built.Close()
			built = nil
		}
	}
	return cmd, closeApp
}

// Execute is the main entry point.
func Execute() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "regwatch:", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	root, closeApp := newRootCmd()
	defer closeApp()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
