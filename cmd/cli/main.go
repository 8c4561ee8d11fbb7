package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/matrixgrid/internal/app"
	"github.com/vk/matrixgrid/internal/cli"
	"github.com/vk/matrixgrid/internal/config"
)

// main is the entrypoint for the matrixgrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. A failing run is reported as an ExitError carrying the run's
// exit code.
func run(ctx context.Context, outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	matrixApp, err := app.NewApp(outW, appConfig)
	if err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			return &cli.ExitError{Code: cli.ExitUsage, Message: err.Error()}
		}
		return err
	}

	result, err := matrixApp.Run(ctx)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &cli.ExitError{Code: result.ExitCode}
	}
	return nil
}
