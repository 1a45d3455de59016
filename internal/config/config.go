// Package config loads the single configuration record spec.md §6
// describes, the same way the teacher's internal/daemon package loads its
// config: TOML via github.com/BurntSushi/toml, a Config struct with nested
// sections, and a DefaultConfig() constructor. Grounded on the teacher's
// internal/daemon/config_test.go (the teacher's config.go itself was not
// retrieved; this reconstructs the shape its test describes) and spec.md
// §6's "Configuration" key list.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/crosscatio/crosscat/internal/domain"
)

// CatConfig is kernels.cat.* (spec.md §6).
type CatConfig struct {
	EmptyGroupCount  uint32 `toml:"empty_group_count"`
	RowQueueCapacity uint32 `toml:"row_queue_capacity"`
	ParserThreads    uint32 `toml:"parser_threads"`
}

// KindConfig is kernels.kind.* (spec.md §6).
type KindConfig struct {
	Iterations       uint32 `toml:"iterations"`
	EmptyKindCount   uint32 `toml:"empty_kind_count"`
	ScoreParallel    bool   `toml:"score_parallel"`
	RowQueueCapacity uint32 `toml:"row_queue_capacity"`
	ParserThreads    uint32 `toml:"parser_threads"`
}

// HyperConfig is kernels.hyper.* (spec.md §6).
type HyperConfig struct {
	Run      bool `toml:"run"`
	Parallel bool `toml:"parallel"`
}

// KernelsConfig groups the three per-kernel sections (spec.md §6
// "kernels.cat.*" / "kernels.kind.*" / "kernels.hyper.*").
type KernelsConfig struct {
	Cat   CatConfig   `toml:"cat"`
	Kind  KindConfig  `toml:"kind"`
	Hyper HyperConfig `toml:"hyper"`
}

// ScheduleConfig is schedule.* (spec.md §6).
type ScheduleConfig struct {
	ExtraPasses    float64 `toml:"extra_passes"`
	MaxRejectIters uint32  `toml:"max_reject_iters"`
}

// GenerateConfig is generate.* (spec.md §6).
type GenerateConfig struct {
	RowCount uint32  `toml:"row_count"`
	Density  float64 `toml:"density"`
}

// PosteriorEnumConfig is posterior_enum.* (spec.md §6).
type PosteriorEnumConfig struct {
	SampleCount uint32 `toml:"sample_count"`
	SampleSkip  uint32 `toml:"sample_skip"`
}

// Config is the single config record spec.md §6 describes.
type Config struct {
	Seed uint64 `toml:"seed"`

	Kernels       KernelsConfig       `toml:"kernels"`
	Schedule      ScheduleConfig      `toml:"schedule"`
	Generate      GenerateConfig      `toml:"generate"`
	PosteriorEnum PosteriorEnumConfig `toml:"posterior_enum"`
}

// DefaultConfig returns the engine's out-of-the-box defaults: kind
// inference and hyperparameter resampling both on, no pipeline (sequential
// execution), a single reserve group/kind, and one posterior_enum sample.
func DefaultConfig() Config {
	return Config{
		Seed: 0,
		Kernels: KernelsConfig{
			Cat: CatConfig{
				EmptyGroupCount:  1,
				RowQueueCapacity: 0,
				ParserThreads:    1,
			},
			Kind: KindConfig{
				Iterations:       1,
				EmptyKindCount:   1,
				ScoreParallel:    true,
				RowQueueCapacity: 0,
				ParserThreads:    1,
			},
			Hyper: HyperConfig{
				Run:      true,
				Parallel: true,
			},
		},
		Schedule: ScheduleConfig{
			ExtraPasses:    0,
			MaxRejectIters: 0,
		},
		Generate: GenerateConfig{
			RowCount: 100,
			Density:  1.0,
		},
		PosteriorEnum: PosteriorEnumConfig{
			SampleCount: 1,
			SampleSkip:  0,
		},
	}
}

// Load reads and parses a TOML config file at path, starting from
// DefaultConfig so an incomplete file only overrides the keys it mentions,
// then validates it.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, domain.ErrIO)
		}
		return Config{}, fmt.Errorf("config: parse %s: %w", path, domain.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects the parameter combinations spec.md §6/§7 name as fatal
// ConfigError: zero empty_group_count/empty_kind_count/parser_threads
// (every one of these must be a usable reserve pool, never zero), negative
// extra_passes, an out-of-[0,1] generate density, or a zero
// posterior_enum.sample_count.
func (c Config) Validate() error {
	switch {
	case c.Kernels.Cat.EmptyGroupCount == 0:
		return fmt.Errorf("config: kernels.cat.empty_group_count must be > 0: %w", domain.ErrConfig)
	case c.Kernels.Cat.ParserThreads == 0:
		return fmt.Errorf("config: kernels.cat.parser_threads must be > 0: %w", domain.ErrConfig)
	case c.Kernels.Kind.EmptyKindCount == 0:
		return fmt.Errorf("config: kernels.kind.empty_kind_count must be > 0: %w", domain.ErrConfig)
	case c.Kernels.Kind.ParserThreads == 0:
		return fmt.Errorf("config: kernels.kind.parser_threads must be > 0: %w", domain.ErrConfig)
	case c.Schedule.ExtraPasses < 0:
		return fmt.Errorf("config: schedule.extra_passes must be >= 0: %w", domain.ErrConfig)
	case c.Generate.Density < 0 || c.Generate.Density > 1:
		return fmt.Errorf("config: generate.density must be in [0,1]: %w", domain.ErrConfig)
	case c.PosteriorEnum.SampleCount == 0:
		return fmt.Errorf("config: posterior_enum.sample_count must be >= 1: %w", domain.ErrConfig)
	}
	return nil
}
