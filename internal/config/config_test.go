package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Kernels.Cat.EmptyGroupCount != 1 {
		t.Errorf("Kernels.Cat.EmptyGroupCount = %d, want 1", cfg.Kernels.Cat.EmptyGroupCount)
	}
	if cfg.Kernels.Cat.RowQueueCapacity != 0 {
		t.Errorf("Kernels.Cat.RowQueueCapacity = %d, want 0", cfg.Kernels.Cat.RowQueueCapacity)
	}
	if cfg.Kernels.Kind.EmptyKindCount != 1 {
		t.Errorf("Kernels.Kind.EmptyKindCount = %d, want 1", cfg.Kernels.Kind.EmptyKindCount)
	}
	if !cfg.Kernels.Hyper.Run {
		t.Error("Kernels.Hyper.Run should be true by default")
	}
	if cfg.Generate.Density != 1.0 {
		t.Errorf("Generate.Density = %v, want 1.0", cfg.Generate.Density)
	}
	if cfg.PosteriorEnum.SampleCount != 1 {
		t.Errorf("PosteriorEnum.SampleCount = %d, want 1", cfg.PosteriorEnum.SampleCount)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"zero empty group count", func(c *Config) { c.Kernels.Cat.EmptyGroupCount = 0 }, true},
		{"zero parser threads cat", func(c *Config) { c.Kernels.Cat.ParserThreads = 0 }, true},
		{"zero empty kind count", func(c *Config) { c.Kernels.Kind.EmptyKindCount = 0 }, true},
		{"negative extra passes", func(c *Config) { c.Schedule.ExtraPasses = -1 }, true},
		{"density above 1", func(c *Config) { c.Generate.Density = 1.5 }, true},
		{"density below 0", func(c *Config) { c.Generate.Density = -0.1 }, true},
		{"zero sample count", func(c *Config) { c.PosteriorEnum.SampleCount = 0 }, true},
		{"valid default", func(c *Config) {}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, domain.ErrConfig) {
				t.Fatalf("Validate() = %v, want ErrConfig", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestLoadOverridesOnlyMentionedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
seed = 42

[schedule]
extra_passes = 3.0
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.Schedule.ExtraPasses != 3.0 {
		t.Errorf("Schedule.ExtraPasses = %v, want 3.0", cfg.Schedule.ExtraPasses)
	}
	if cfg.Kernels.Cat.EmptyGroupCount != 1 {
		t.Errorf("Kernels.Cat.EmptyGroupCount = %d, want default 1", cfg.Kernels.Cat.EmptyGroupCount)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, domain.ErrIO) {
		t.Fatalf("Load() error = %v, want ErrIO", err)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[schedule]
extra_passes = -5.0
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("Load() error = %v, want ErrConfig", err)
	}
}
