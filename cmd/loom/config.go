package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/inference"
)

// Config represents the loom configuration file (~/.config/loom/config.yaml).
// All fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	// Model
	Vocab     string `yaml:"vocab"`
	Hidden    *int64 `yaml:"hidden"`
	ModelSeed *int64 `yaml:"model_seed"`

	// Generation defaults
	Strategy              string         `yaml:"strategy"`
	BeamSize              *int64         `yaml:"beam_size"`
	Temperature           *float64       `yaml:"temperature"`
	MaxLength             *int64         `yaml:"max_length"`
	Seed                  *int64         `yaml:"seed"`
	Alpha                 *float64       `yaml:"alpha"`
	LengthPenaltyConstant *float64       `yaml:"length_penalty_constant"`
	Backfill              *bool          `yaml:"backfill"`
	Timeout               *time.Duration `yaml:"timeout"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if p := os.Getenv("LOOM_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loom", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; an
// unreadable, malformed or invalid one is an error.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	cfg, err := loadConfigFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that could never produce a working command.
func (cfg Config) Validate() error {
	if cfg.Hidden != nil && *cfg.Hidden < 1 {
		return fmt.Errorf("%w: hidden must be >= 1, got %d", decode.ErrInvalidConfig, *cfg.Hidden)
	}
	return cfg.Defaults().Validate()
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		vocabPath = cfg.Vocab
	}
	if cfg.Hidden != nil && !c.IsSet("hidden") {
		hidden = *cfg.Hidden
	}
	if cfg.ModelSeed != nil && !c.IsSet("model-seed") {
		modelSeed = *cfg.ModelSeed
	}
}

// applyGenerateConfig applies config file defaults to the generation flags
// when the corresponding CLI flag was not explicitly set. The strategy is
// fixed by the command and never taken from the file.
func applyGenerateConfig(c *cli.Command, cfg Config, o *genOptions) {
	if cfg.BeamSize != nil && !c.IsSet("beam-size") {
		o.beamSize = *cfg.BeamSize
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		o.temperature = *cfg.Temperature
	}
	if cfg.MaxLength != nil && !c.IsSet("max-length") {
		o.maxLength = *cfg.MaxLength
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		o.seed = *cfg.Seed
	}
	if cfg.Alpha != nil && !c.IsSet("alpha") {
		o.alpha = *cfg.Alpha
	}
	if cfg.LengthPenaltyConstant != nil && !c.IsSet("length-penalty-constant") {
		o.constant = *cfg.LengthPenaltyConstant
	}
	if cfg.Backfill != nil && !c.IsSet("backfill") {
		o.backfill = *cfg.Backfill
	}
	if cfg.Timeout != nil && !c.IsSet("timeout") {
		o.timeout = *cfg.Timeout
	}
}

// Defaults converts the file's generation settings into server defaults.
func (cfg Config) Defaults() inference.Defaults {
	var d inference.Defaults
	if cfg.Strategy != "" {
		d.Strategy = &cfg.Strategy
	}
	if cfg.BeamSize != nil {
		v := int(*cfg.BeamSize)
		d.BeamSize = &v
	}
	if cfg.MaxLength != nil {
		v := int(*cfg.MaxLength)
		d.MaxLength = &v
	}
	d.Temperature = cfg.Temperature
	d.Alpha = cfg.Alpha
	d.LengthPenaltyConstant = cfg.LengthPenaltyConstant
	d.Backfill = cfg.Backfill
	d.Timeout = cfg.Timeout
	return d
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
