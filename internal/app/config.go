package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/matrixgrid/internal/cache"
	"github.com/vk/matrixgrid/internal/config"
)

// Cache backends.
const (
	CacheNone = "none"
	CacheFile = "file"
	CacheS3   = "s3"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Paths are declaration files or directories (.hcl, .yml, .yaml).
	Paths []string
	// RecipesPath holds extra package-manager recipes. Optional.
	RecipesPath string
	// Workspace is the source tree the steps run in.
	Workspace string
	// Jobs restricts the run to the named jobs. Empty runs every job.
	Jobs []string
	// Event filters jobs by their triggers. The zero Event runs every job.
	Event config.Event

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int

	// LogDir receives per-step log files. Optional.
	LogDir string
	// Quiet suppresses streaming step output.
	Quiet bool
	// Isolate gives every cell its own copy of the workspace.
	Isolate bool
	// ContainerEngine runs cells that name a container. Empty disables
	// containers.
	ContainerEngine string
	GracePeriod     time.Duration

	CacheBackend string
	CacheDir     string
	CacheCodec   string
	S3           cache.S3Config

	// ReportJSON, when set, receives the run result as JSON.
	ReportJSON string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("at least one declaration path is required")
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	ws, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	cfg.Workspace = ws
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.GracePeriod < 0 {
		return nil, errors.New("grace period cannot be negative")
	}

	if _, err := cache.ParseCodec(cfg.CacheCodec); err != nil {
		return nil, err
	}
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	switch cfg.CacheBackend {
	case "", CacheNone:
		cfg.CacheBackend = CacheNone
	case CacheFile:
		if cfg.CacheDir == "" {
			dir, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("no cache directory given and no user cache directory: %w", err)
			}
			cfg.CacheDir = filepath.Join(dir, "matrixgrid")
		}
	case CacheS3:
		if err := cfg.S3.Validate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown cache backend %q: must be 'none', 'file' or 's3'", cfg.CacheBackend)
	}

	return &cfg, nil
}
