package config

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"PackageDB/errdefs"
	"PackageDB/types"
)

// Config holds the engine settings shared by every package opened in a process.
// The geometry (unit size, page size) is only used for packages created fresh; an existing
// package keeps the geometry recorded in its index file.
type Config struct {
	// UnitSize is the width in bytes of one unit of the payload file.
	UnitSize int `toml:"unit_size"`
	// PageSize is the number of units per page, the allocation granularity.
	PageSize int `toml:"page_size"`
	// AllowGrowth lets the pager append pages at the end of the payload file when no free page is left.
	AllowGrowth bool `toml:"allow_growth"`
	// CacheBytes bounds the pager's page read cache. 0 disables it.
	CacheBytes int64 `toml:"cache_bytes"`
	// LoadImmediateFatal makes opening a package fail when a LoadImmediate entry cannot be
	// materialized. When false the failure is logged and the entry stays unmaterialized.
	LoadImmediateFatal bool `toml:"load_immediate_fatal"`
	// LogLevel is a logrus level name.
	LogLevel string `toml:"log_level"`
}

func Default() Config {
	return Config{
		UnitSize:           types.DefaultUnitSize,
		PageSize:           types.DefaultPageSize,
		AllowGrowth:        true,
		CacheBytes:         1 << 20,
		LoadImmediateFatal: true,
		LogLevel:           "info",
	}
}

// Load reads a TOML file on top of the defaults. Keys missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errdefs.IOError(err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(errdefs.ErrFormat, "parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.UnitSize < types.MinUnitSize {
		return errors.Wrapf(errdefs.ErrValidation, "unit_size %d is below the minimum of %d", c.UnitSize, types.MinUnitSize)
	}
	if c.UnitSize > types.MaxUnitSize {
		return errors.Wrapf(errdefs.ErrValidation, "unit_size %d is above the maximum of %d", c.UnitSize, types.MaxUnitSize)
	}
	if c.PageSize <= 0 || c.PageSize > types.MaxPageSize {
		return errors.Wrapf(errdefs.ErrValidation, "page_size must be in 1..%d, got %d", types.MaxPageSize, c.PageSize)
	}
	if c.CacheBytes < 0 {
		return errors.Wrapf(errdefs.ErrValidation, "cache_bytes must not be negative, got %d", c.CacheBytes)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (logrus.Level, error) {
	if strings.TrimSpace(c.LogLevel) == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, errors.Wrapf(errdefs.ErrValidation, "log_level: %v", err)
	}
	return lvl, nil
}
