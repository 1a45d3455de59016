package cli

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/assignments"
	"github.com/crosscatio/crosscat/internal/engine/driver"
	"github.com/crosscatio/crosscat/internal/engine/stream"
)

var posteriorEnumCmd = &cobra.Command{
	Use:   "posterior-enum MODEL_IN ROWS_IN SAMPLES_OUT",
	Short: "emit sample_count posterior partition samples spaced by sample_skip sweeps (original_source/src/posterior_enum.cc)",
	Args:  cobra.ExactArgs(3),
	RunE:  runPosteriorEnum,
}

func init() {
	rootCmd.AddCommand(posteriorEnumCmd)
}

// sampleJSON is one posterior_enum sample: every currently-assigned row's
// group id in each kind, at one particular batch boundary.
type sampleJSON struct {
	TardisIter uint64               `json:"tardis_iter"`
	Rows       []assignments.Record `json:"rows"`
}

func runPosteriorEnum(cmd *cobra.Command, args []string) error {
	modelIn, rowsIn, samplesOut := args[0], args[1], args[2]

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

	var source stream.RowSource = rows
	d, err := driver.New(cc, source, buildDriverConfig(cfg, cc), cliLogger(), nil, "")
	if err != nil {
		return err
	}

	out, err := os.Create(samplesOut)
	if err != nil {
		return exitError("posterior-enum: create %s: %v", samplesOut, err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	sampleSkip := int(cfg.PosteriorEnum.SampleSkip)
	if sampleSkip < 1 {
		sampleSkip = 1
	}
	for s := uint32(0); s < cfg.PosteriorEnum.SampleCount; s++ {
		if _, err := d.RunBatches(sampleSkip); err != nil {
			return err
		}
		records, err := d.SnapshotAssignments()
		if err != nil {
			return err
		}
		if err := enc.Encode(sampleJSON{TardisIter: d.TardisIter(), Rows: records}); err != nil {
			return exitError("posterior-enum: encode sample %d: %v", s, domain.ErrParse)
		}
	}
	if err := w.Flush(); err != nil {
		return exitError("posterior-enum: flush %s: %v", samplesOut, err)
	}
	cliLogger().Infof("posterior-enum: wrote %d samples to %s", cfg.PosteriorEnum.SampleCount, samplesOut)
	return nil
}
