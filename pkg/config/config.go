// Package config loads skillkeeper settings from config.yaml, SKILLKEEPER_*
// environment variables and command line flags through viper.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/makgunay/claude-swift-skills/pkg/db"
	"github.com/makgunay/claude-swift-skills/pkg/ruleset"
	"github.com/makgunay/claude-swift-skills/pkg/telemetry"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "SKILLKEEPER"

// KBConfig holds knowledge base limits.
type KBConfig struct {
	SectionCeiling int `mapstructure:"section_ceiling"`
}

// PipelineConfig holds ingestion settings.
type PipelineConfig struct {
	Workers        int    `mapstructure:"workers"`
	CreateUnmapped bool   `mapstructure:"create_unmapped"`
	Into           string `mapstructure:"into"`
	RetryAttempts  uint   `mapstructure:"retry_attempts"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the resolved configuration.
type Config struct {
	DBPath    string           `mapstructure:"db_path"`
	SkillsDir string           `mapstructure:"skills_dir"`
	Ruleset   string           `mapstructure:"ruleset"`
	KB        KBConfig         `mapstructure:"kb"`
	Pipeline  PipelineConfig   `mapstructure:"pipeline"`
	Tracing   telemetry.Config `mapstructure:"tracing"`
	Log       LogConfig        `mapstructure:"log"`
}

// Init prepares v for environment overrides and reads config.yaml from
// $HOME/.skillkeeper or the working directory when present.
func Init(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.skillkeeper")
	v.AddConfigPath(".")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "failed to read config file")
		}
	}
	return nil
}

// SetDefaults registers every known key so environment overrides are
// picked up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	dbPath, err := db.DefaultDBPath()
	if err != nil {
		dbPath = "storage.db"
	}
	v.SetDefault("db_path", dbPath)
	v.SetDefault("skills_dir", "")
	v.SetDefault("ruleset", "")
	v.SetDefault("kb.section_ceiling", ruleset.DefaultCeiling)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.create_unmapped", false)
	v.SetDefault("pipeline.into", "")
	v.SetDefault("pipeline.retry_attempts", 5)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", telemetry.ServiceName)
	v.SetDefault("tracing.sampler", "ratio")
	v.SetDefault("tracing.ratio", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "fmt")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	var err error
	for _, p := range []*string{&cfg.DBPath, &cfg.SkillsDir, &cfg.Ruleset} {
		if *p, err = expandHome(*p); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db_path must not be empty")
	case c.KB.SectionCeiling < 1:
		return errors.Errorf("kb.section_ceiling must be >= 1, got %d", c.KB.SectionCeiling)
	case c.Pipeline.Workers < 1:
		return errors.Errorf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	case c.Pipeline.CreateUnmapped && c.Pipeline.Into != "":
		return errors.New("pipeline.create_unmapped and pipeline.into are mutually exclusive")
	}
	switch c.Log.Format {
	case "fmt", "json":
	default:
		return errors.Errorf("log.format must be fmt or json, got %q", c.Log.Format)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
