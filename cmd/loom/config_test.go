package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/decode"
)

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
vocab: /tmp/words.json
strategy: sample
beam_size: 6
temperature: 0.5
alpha: 0
backfill: true
timeout: 2s
log_level: debug
server_address: 0.0.0.0:9000
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if cfg.Vocab != "/tmp/words.json" || cfg.Strategy != "sample" || cfg.LogLevel != "debug" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BeamSize == nil || *cfg.BeamSize != 6 || cfg.Temperature == nil || *cfg.Temperature != 0.5 {
		t.Fatalf("unexpected generation settings %+v", cfg)
	}
	if cfg.Alpha == nil || *cfg.Alpha != 0 {
		t.Fatal("an explicit zero alpha must be kept")
	}
	if cfg.MaxLength != nil {
		t.Fatal("unset fields must stay nil")
	}
	if cfg.Timeout == nil || *cfg.Timeout != 2*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Timeout)
	}

	d := cfg.Defaults()
	if *d.Strategy != "sample" || *d.BeamSize != 6 || !*d.Backfill || d.MaxLength != nil {
		t.Fatalf("unexpected defaults %+v", d)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := loadConfigFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("beam_size: [1, 2"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfigFile(bad); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadConfigFileRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"zero_beams", "beam_size: 0\n"},
		{"negative_temperature", "temperature: -1\n"},
		{"zero_max_length", "max_length: 0\n"},
		{"negative_alpha", "alpha: -0.5\n"},
		{"zero_constant", "length_penalty_constant: 0\n"},
		{"negative_timeout", "timeout: -1s\n"},
		{"unknown_strategy", "strategy: greedy\n"},
		{"zero_hidden", "hidden: 0\n"},
	}
	dir := t.TempDir()
	for _, tc := range tests {
		path := filepath.Join(dir, tc.name+".yaml")
		if err := os.WriteFile(path, []byte(tc.data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := loadConfigFile(path); !errors.Is(err, decode.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("LOOM_CONFIG", filepath.Join(dir, "missing.yaml"))
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("a missing file is not an error: %v", err)
	}
	if cfg.BeamSize != nil || cfg.Vocab != "" {
		t.Fatalf("expected a zero config, got %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("beam_size: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOOM_CONFIG", bad)
	if _, err := LoadConfig(); !errors.Is(err, decode.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

// runGenerateFlags parses args against the generation flags and applies cfg.
func runGenerateFlags(t *testing.T, cfg Config, args ...string) genOptions {
	t.Helper()
	opts := genOptions{strategy: "beam"}
	cmd := &cli.Command{
		Name:  "test",
		Flags: generationFlags(&opts),
		Action: func(_ context.Context, cmd *cli.Command) error {
			applyGenerateConfig(cmd, cfg, &opts)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return opts
}

func TestApplyGenerateConfig(t *testing.T) {
	t.Parallel()

	beamSize, maxLength := int64(9), int64(12)
	alpha := 1.5
	cfg := Config{BeamSize: &beamSize, MaxLength: &maxLength, Alpha: &alpha}

	opts := runGenerateFlags(t, cfg)
	if opts.beamSize != 9 || opts.maxLength != 12 || opts.alpha != 1.5 {
		t.Fatalf("config not applied: %+v", opts)
	}
	if opts.temperature != 1 || opts.constant != 5 || opts.seed != -1 {
		t.Fatalf("flag defaults lost: %+v", opts)
	}

	opts = runGenerateFlags(t, cfg, "--beam-size", "2", "--alpha", "0")
	if opts.beamSize != 2 || opts.alpha != 0 || opts.maxLength != 12 {
		t.Fatalf("explicit flags must win: %+v", opts)
	}
}

func TestRequestOptions(t *testing.T) {
	t.Parallel()

	opts := runGenerateFlags(t, Config{}, "-k", "3", "--backfill", "--timeout", "1s")
	ro := opts.requestOptions([]string{"the cat"})
	if *ro.Strategy != "beam" || *ro.BeamSize != 3 || !*ro.Backfill || *ro.Timeout != time.Second {
		t.Fatalf("unexpected request options %+v", ro)
	}
	if ro.NumResults != nil {
		t.Fatal("num-results must follow the beam size when not given")
	}

	opts = runGenerateFlags(t, Config{}, "--num-results", "1")
	if ro := opts.requestOptions(nil); ro.NumResults == nil || *ro.NumResults != 1 {
		t.Fatal("num-results not passed on")
	}
}
