package cli

import (
	"github.com/spf13/cobra"

	"github.com/crosscatio/crosscat/internal/engine/driver"
	"github.com/crosscatio/crosscat/internal/engine/stream"
)

var mixCmd = &cobra.Command{
	Use:   "mix MODEL_IN ROWS_IN MODEL_OUT",
	Short: "single-pass update of a pretrained model on new rows (original_source/src/mix.cc)",
	Args:  cobra.ExactArgs(3),
	RunE:  runMix,
}

func init() {
	mixCmd.Flags().StringVar(&inferRunID, "run-id", "", "run id identifying the checkpoint to resume (required unless --checkpoint-db is --none)")
	rootCmd.AddCommand(mixCmd)
}

// runMix is infer's one-batch special case: resume a previously checkpointed
// run (if --checkpoint-db names one and --run-id matches it), add every row
// in ROWS_IN, run exactly one PROCESS_BATCH boundary, and persist the result.
// Unlike infer, it never accelerates the schedule or iterates — mix.cc's
// `engine.mix` is a single forward pass over the given rows, not a multi-pass
// anneal.
func runMix(cmd *cobra.Command, args []string) error {
	modelIn, rowsIn, modelOut := args[0], args[1], args[2]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	spec, err := LoadModelSpec(modelIn)
	if err != nil {
		return err
	}
	rng := newRNG(cfg)
	cc, err := spec.BuildCrossCat(rng)
	if err != nil {
		return err
	}
	rows, err := ReadRows(rowsIn)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	dcfg := buildDriverConfig(cfg, cc)
	dcfg.Schedule.ExtraPasses = 0
	dcfg.Kind.Iterations = 0

	var source stream.RowSource = rows
	d, err := driver.New(cc, source, dcfg, cliLogger(), db, inferRunID)
	if err != nil {
		return err
	}

	if db != nil && inferRunID != "" {
		cp, ok, err := db.LoadCheckpoint(inferRunID)
		if err != nil {
			return err
		}
		if ok {
			records, sortedToGlobal, ok, err := db.LoadAssignments(inferRunID)
			if err != nil {
				return err
			}
			if ok {
				if err := d.Resume(cp, records, sortedToGlobal); err != nil {
					return err
				}
			}
		}
	}

	if _, err := d.RunBatches(1); err != nil {
		return err
	}
	cliLogger().Infof("mix: applied %d rows in one pass, tardis_iter=%d", len(rows), d.TardisIter())

	return WriteModelSpec(modelOut, spec)
}
