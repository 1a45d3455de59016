package cli

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/crosscatio/crosscat/internal/config"
	"github.com/crosscatio/crosscat/internal/infra/observability"
	"github.com/crosscatio/crosscat/internal/infra/store"
)

var (
	configPath string
	dbPath     string
)

// rootCmd is the cobra entrypoint, grounded on the teacher's
// internal/cli/agent.go root command (PersistentFlags for shared inputs,
// subcommands registered from each file's init()).
var rootCmd = &cobra.Command{
	Use:           "crosscat",
	Short:         "streaming cross-categorization inference engine",
	Long:          "crosscat drives the nonparametric cross-categorization inference engine: generating synthetic rows from the prior, running streaming inference over a row source, enumerating posterior samples, updating a model with new rows in a single pass, and serving a query API.",
	SilenceUsage:  false,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", noneSentinel, "TOML configuration file (--none for defaults)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "checkpoint-db", noneSentinel, "sqlite checkpoint/assignment store (--none disables checkpointing)")
}

// Execute runs the cobra command tree; returns the error cobra produced
// (already printed to stderr with usage, per cobra's default behavior) so
// cmd/crosscat/main.go can translate it into a process exit code.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves --config into an internal/config.Config, falling
// back to config.DefaultConfig() for the --none sentinel.
func loadConfig() (config.Config, error) {
	if isNone(configPath) {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

// openStore opens --checkpoint-db, or returns a nil *store.DB (checkpointing
// disabled) for the --none sentinel.
func openStore() (*store.DB, error) {
	if isNone(dbPath) {
		return nil, nil
	}
	return store.Open(dbPath)
}

// newRNG seeds a *rand.Rand from cfg.Seed, the driver/kernels' own
// convention (spec.md §3: "rng is never shared across goroutines, always
// seeded deterministically from the configured seed").
func newRNG(cfg config.Config) *rand.Rand {
	return rand.New(rand.NewSource(int64(cfg.Seed)))
}

// cliLogger builds the observability.Logger every subcommand reports
// progress through, mirroring the driver's own WithFields(run_id) pattern.
func cliLogger() observability.Logger {
	return observability.NewStdLogger("crosscat")
}

// exitError wraps a formatted message as an error for RunE to return; cobra
// prints it to stderr alongside the command's usage string and the process
// exits non-zero (spec.md §6: "unknown arguments or missing required
// arguments exit non-zero with a usage string").
func exitError(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

