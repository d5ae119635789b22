package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/logger"
	"github.com/samcharles93/qdqconf/internal/overrides"
	"github.com/samcharles93/qdqconf/internal/version"
)

func main() {
	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "qdqconf",
		Usage:   "Resolve QDQ quantization type overrides for a graph",
		Version: version.String(),
		Flags:   loggingFlags(),
		Before:  setupLogger,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			resolveCmd(),
			inspectCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

func setupLogger(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	applyLoggingConfig(cmd, LoadConfig())

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.ForFormat(logFormat, errWriter(cmd), level)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// exitCode distinguishes conflicts and unsupported requests from other
// failures so scripts can react to them.
func exitCode(err error) int {
	switch {
	case errors.Is(err, overrides.ErrConflict):
		return 2
	case errors.Is(err, overrides.ErrNotSupported):
		return 3
	case errors.Is(err, overrides.ErrInvalidOverride), errors.Is(err, graph.ErrMalformed):
		return 4
	default:
		return 1
	}
}

func exitErr(what string, err error) error {
	return cli.Exit(fmt.Sprintf("error: %s: %v", what, err), exitCode(err))
}
