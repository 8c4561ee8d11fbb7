package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/vk/matrixgrid/internal/app"
	"github.com/vk/matrixgrid/internal/cache"
	"github.com/vk/matrixgrid/internal/config"
)

// Exit codes of the process.
const (
	ExitRunFailed = 1
	ExitUsage     = 2
)

// Environment fallbacks for S3 credentials.
const (
	EnvS3AccessKey = "MATRIXGRID_S3_ACCESS_KEY"
	EnvS3SecretKey = "MATRIXGRID_S3_SECRET_KEY"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(output, `
matrixgrid - a matrix-driven build and test orchestration engine.

Expands every job's matrix into cells, runs each cell's steps on the host or
in a container and reports a per-cell breakdown with one aggregate verdict.

Usage:
  matrixgrid [options] PATH...

Arguments:
  PATH
    A .hcl, .yml or .yaml file, or a directory searched recursively.

Options:
`)
	fmt.Fprint(output, flagSet.FlagUsages())
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := pflag.NewFlagSet("matrixgrid", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() { printHelp(output, flagSet) }

	var (
		cfg      app.Config
		event    string
		s3SSL    bool
		s3Prefix string
	)
	flagSet.StringVarP(&cfg.Workspace, "workdir", "C", ".", "Workspace the steps run in.")
	flagSet.StringSliceVarP(&cfg.Jobs, "job", "j", nil, "Run only the named jobs. Repeatable.")
	flagSet.StringVar(&event, "event", "", "Event to select jobs by: 'push', 'pull_request' or 'manual'. Empty runs every job.")
	flagSet.StringVar(&cfg.Event.Branch, "branch", "", "Branch the event happened on.")
	flagSet.StringVar(&cfg.RecipesPath, "recipes", "", "Directory with additional package-manager recipes.")
	flagSet.IntVarP(&cfg.WorkerCount, "workers", "w", 4, "Number of cells of a job that run at once.")
	flagSet.BoolVar(&cfg.Isolate, "isolate", true, "Give every cell its own copy of the workspace.")
	flagSet.StringVar(&cfg.ContainerEngine, "container-engine", "docker", "Engine CLI for container cells. Empty disables containers.")
	flagSet.DurationVar(&cfg.GracePeriod, "grace-period", 10*time.Second, "Time between SIGTERM and SIGKILL when a step is cancelled.")
	flagSet.StringVar(&cfg.LogDir, "log-dir", "", "Directory for per-step log files.")
	flagSet.BoolVarP(&cfg.Quiet, "quiet", "q", false, "Do not stream step output.")
	flagSet.StringVar(&cfg.ReportJSON, "report-json", "", "Write the run result as JSON to this file.")
	flagSet.StringVar(&cfg.CacheBackend, "cache", app.CacheNone, "Cache backend: 'none', 'file' or 's3'.")
	flagSet.StringVar(&cfg.CacheDir, "cache-dir", "", "Directory of the file cache (default: user cache directory).")
	flagSet.StringVar(&cfg.CacheCodec, "cache-codec", string(cache.CodecZstd), "Cache archive compression: 'zstd' or 'lz4'.")
	flagSet.StringVar(&cfg.S3.Endpoint, "s3-endpoint", "", "S3 endpoint, host[:port].")
	flagSet.StringVar(&cfg.S3.Bucket, "s3-bucket", "", "S3 bucket of the cache.")
	flagSet.StringVar(&s3Prefix, "s3-prefix", "matrixgrid", "Key prefix inside the bucket.")
	flagSet.StringVar(&cfg.S3.Region, "s3-region", "", "S3 region.")
	flagSet.BoolVar(&s3SSL, "s3-ssl", true, "Use TLS for S3.")
	flagSet.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health and status server. 0 is disabled.")
	flagSet.StringVar(&cfg.LogFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("Arguments parsed successfully.")

	cfg.Paths = flagSet.Args()
	if len(cfg.Paths) == 0 {
		slog.Debug("No declaration path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	switch event {
	case "", config.EventPush, config.EventPullRequest, config.EventManual:
		cfg.Event.Kind = event
	default:
		return nil, false, usageError("invalid event %q: must be 'push', 'pull_request' or 'manual'", event)
	}

	cfg.S3.Prefix = s3Prefix
	cfg.S3.UseSSL = s3SSL
	cfg.S3.AccessKey = os.Getenv(EnvS3AccessKey)
	cfg.S3.SecretKey = os.Getenv(EnvS3SecretKey)

	appConfig, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}

	slog.Debug("CLI parser finished successfully.", "paths", appConfig.Paths, "workers", appConfig.WorkerCount)
	return appConfig, false, nil
}
