package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the keeper daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	NodeConfig    string          `yaml:"node_config"`
	DataDir       string          `yaml:"data_dir"`
	IndexDSN      string          `yaml:"index_dsn"`
	Owner         string          `yaml:"owner"`
	Schedule      ScheduleConfig  `yaml:"schedule"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Log           LogConfig       `yaml:"log"`
}

// ScheduleConfig lists the cron specs (with seconds) for the keeper jobs.
type ScheduleConfig struct {
	Delegate string        `yaml:"delegate"`
	Settle   string        `yaml:"settle"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Traces      bool              `yaml:"traces"`
	Metrics     bool              `yaml:"metrics"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: ":9464"}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":9464"
	}
	cfg.NodeConfig = strings.TrimSpace(cfg.NodeConfig)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.IndexDSN = strings.TrimSpace(cfg.IndexDSN)
	if cfg.IndexDSN == "" {
		cfg.IndexDSN = "file:keeperd-events.db"
	}
	cfg.Owner = strings.TrimSpace(cfg.Owner)
	cfg.Schedule.Delegate = strings.TrimSpace(cfg.Schedule.Delegate)
	cfg.Schedule.Settle = strings.TrimSpace(cfg.Schedule.Settle)
	if cfg.Schedule.Delegate == "" {
		cfg.Schedule.Delegate = "0 */10 * * * *"
	}
	if cfg.Schedule.Settle == "" {
		cfg.Schedule.Settle = "0 * * * * *"
	}
	if cfg.Schedule.Timeout <= 0 {
		cfg.Schedule.Timeout = 30 * time.Second
	}
}

func (cfg *Config) validate() error {
	if cfg.NodeConfig == "" && cfg.DataDir == "" {
		return fmt.Errorf("either node_config or data_dir is required")
	}
	if cfg.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Schedule.Delegate); err != nil {
		return fmt.Errorf("schedule.delegate: %w", err)
	}
	if _, err := parser.Parse(cfg.Schedule.Settle); err != nil {
		return fmt.Errorf("schedule.settle: %w", err)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if cfg.Log.MaxSizeMB < 0 {
		return fmt.Errorf("log.max_size_mb must not be negative")
	}
	return nil
}
