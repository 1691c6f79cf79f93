// Command hqb compiles and runs Hasura query files.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheColorRed/hasura-query-builder/internal/app"
	"github.com/TheColorRed/hasura-query-builder/internal/config"
	"github.com/TheColorRed/hasura-query-builder/internal/logging"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "hqb",
		Short:         "Compile and run Hasura GraphQL query files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	config.DefineFlags(root.PersistentFlags())

	root.AddCommand(
		newCompileCmd(),
		newExecCmd(),
		newWatchCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

// start loads and validates configuration and initializes the app. The
// caller owns the returned app and must shut it down.
func start(cmd *cobra.Command) (*app.App, *config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	logger, loggerProvider, err := app.InitLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := checkConfig(cfg, logger); err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return nil, nil, err
	}

	a, err := app.New(cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return nil, nil, err
	}
	a.AttachLoggerProvider(loggerProvider)

	if err := a.Init(cmd.Context()); err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func checkConfig(cfg *config.Config, logger *logging.Logger) error {
	result := cfg.Validate()
	for _, warn := range result.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, err := range result.Errors {
		logger.Error("configuration error",
			slog.String("field", err.Field),
			slog.String("message", err.Message),
			slog.String("hint", err.Hint),
		)
	}
	return fmt.Errorf("configuration validation failed")
}

func stop(a *app.App) {
	ctx, cancel := app.WithShutdownTimeout(0)
	defer cancel()
	_ = a.Shutdown(ctx)
}
