package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the file leaves them unset.
const (
	DefaultLauncherConf = "launcher.conf"
	DefaultArchiveExt   = ".zip"
)

// Load reads and validates an update-gate.yaml configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LauncherConf == "" {
		cfg.LauncherConf = DefaultLauncherConf
	}
	if cfg.ArchiveExt == "" {
		cfg.ArchiveExt = DefaultArchiveExt
	}
}

// LauncherConfPath resolves the launcher conf against the workdir.
func (c *Config) LauncherConfPath() string {
	if filepath.IsAbs(c.LauncherConf) {
		return c.LauncherConf
	}
	return filepath.Join(c.Workdir, c.LauncherConf)
}

// FetchTimeout returns the parsed fetch timeout, zero when unset.
func (c *Config) FetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d — only version 1 is supported", cfg.Version))
	}
	if cfg.Workdir == "" {
		errs = append(errs, "'workdir' is required")
	}
	if ext := cfg.ArchiveExt; ext != "" && !strings.HasPrefix(ext, ".") {
		errs = append(errs, fmt.Sprintf("archive_ext '%s' must start with a dot", ext))
	}
	for i, name := range cfg.Reserved {
		if name == "" {
			errs = append(errs, fmt.Sprintf("reserved[%d]: name must not be empty", i))
		} else if strings.ContainsAny(name, `/\`) {
			errs = append(errs, fmt.Sprintf("reserved name '%s' must be a bare filename", name))
		}
	}
	if cfg.Fetch.Workers < 0 {
		errs = append(errs, fmt.Sprintf("fetch workers must not be negative, got %d", cfg.Fetch.Workers))
	}
	if cfg.Fetch.MaxSize < 0 {
		errs = append(errs, fmt.Sprintf("fetch max_size must not be negative, got %d", cfg.Fetch.MaxSize))
	}
	if cfg.Fetch.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Fetch.Timeout); err != nil {
			errs = append(errs, fmt.Sprintf("fetch timeout '%s' is not a duration", cfg.Fetch.Timeout))
		} else if d < 0 {
			errs = append(errs, fmt.Sprintf("fetch timeout '%s' must not be negative", cfg.Fetch.Timeout))
		}
	}
	return errs
}
