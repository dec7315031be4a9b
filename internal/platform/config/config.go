package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	apperrors "laborwatch/internal/platform/errors"
)

const (
	EnvPrefix      = "LABORWATCH_"
	DefaultDirName = ".laborwatch"
	dbFileName     = "laborwatch.db"
	configFileName = "config.yaml"
)

type Config struct {
	DataDir    string           `yaml:"data_dir" env:"DATA_DIR"`
	DBPath     string           `yaml:"db_path" env:"DB_PATH"`
	Classifier ClassifierConfig `yaml:"classifier" envPrefix:"CLASSIFIER_"`
	Series     SeriesConfig     `yaml:"series" envPrefix:"SERIES_"`
	Alerts     AlertsConfig     `yaml:"alerts" envPrefix:"ALERTS_"`
	HTTP       HTTPConfig       `yaml:"http" envPrefix:"HTTP_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
}

// ClassifierConfig holds the rolling-window policy. Window is the number of
// most recent durations averaged; fewer completed events classify as calm.
type ClassifierConfig struct {
	Window           int           `yaml:"window" env:"WINDOW"`
	UrgentBelow      time.Duration `yaml:"urgent_below" env:"URGENT_BELOW"`
	ApproachingBelow time.Duration `yaml:"approaching_below" env:"APPROACHING_BELOW"`
}

type SeriesConfig struct {
	// Mode is "per-event" or "cumulative".
	Mode string `yaml:"mode" env:"MODE"`
}

type AlertsConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	Bell       bool   `yaml:"bell" env:"BELL"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Classifier: ClassifierConfig{
			Window:           3,
			UrgentBelow:      5 * time.Minute,
			ApproachingBelow: 10 * time.Minute,
		},
		Series: SeriesConfig{Mode: "per-event"},
		Alerts: AlertsConfig{Bell: true},
		HTTP:   HTTPConfig{Addr: "127.0.0.1:8787"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

// DefaultConfigPath is used when no --config flag is given.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), configFileName)
}

// Load layers defaults, the YAML file at path (a missing file is not an
// error), then LABORWATCH_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config yaml: %w", err)
			}
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg.Resolve(), nil
}

// Resolve fills paths derived from DataDir.
func (c Config) Resolve() Config {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir()
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = filepath.Join(c.DataDir, dbFileName)
	}
	return c
}

func (c Config) Validate() error {
	if c.Classifier.Window < 1 {
		return fmt.Errorf("%w: classifier.window must be at least 1", apperrors.ErrInvalidConfig)
	}
	if c.Classifier.UrgentBelow <= 0 || c.Classifier.ApproachingBelow <= c.Classifier.UrgentBelow {
		return fmt.Errorf("%w: require 0 < classifier.urgent_below < classifier.approaching_below", apperrors.ErrInvalidConfig)
	}
	switch c.Series.Mode {
	case "per-event", "cumulative":
	default:
		return fmt.Errorf("%w: series.mode must be per-event or cumulative, got %q", apperrors.ErrInvalidConfig, c.Series.Mode)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("%w: http.addr is required", apperrors.ErrInvalidConfig)
	}
	return nil
}

// LogPath is where the TUI writes its log so output does not reach the screen.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "laborwatch.log")
}

// ActiveTimingPath holds the in-progress timing shared by separate CLI runs.
func (c Config) ActiveTimingPath() string {
	return filepath.Join(c.DataDir, "active-timing.json")
}
