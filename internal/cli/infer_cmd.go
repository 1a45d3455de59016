package cli

import (
	"github.com/spf13/cobra"

	"github.com/crosscatio/crosscat/internal/config"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/driver"
	"github.com/crosscatio/crosscat/internal/engine/hyperkernel"
	"github.com/crosscatio/crosscat/internal/engine/kindkernel"
	"github.com/crosscatio/crosscat/internal/engine/schedule"
	"github.com/crosscatio/crosscat/internal/engine/stream"
)

var (
	inferBatches int
	inferRunID   string
)

var inferCmd = &cobra.Command{
	Use:   "infer MODEL_IN ROWS_IN MODEL_OUT",
	Short: "stream rows through the annealing driver (spec.md §4.1)",
	Args:  cobra.ExactArgs(3),
	RunE:  runInfer,
}

func init() {
	inferCmd.Flags().IntVar(&inferBatches, "batches", 1, "number of PROCESS_BATCH boundaries to run")
	inferCmd.Flags().StringVar(&inferRunID, "run-id", "", "run id stamped into checkpoints (empty generates a uuid)")
	rootCmd.AddCommand(inferCmd)
}

// logGrid returns a small log-spaced grid around 1.0, the hyperkernel's
// default search range for every concentration/discount parameter a
// config file leaves unspecified.
func logGrid() []float64 {
	return []float64{0.1, 0.3, 1.0, 3.0, 10.0, 30.0}
}

func discountGrid() []float64 {
	return []float64{0.0, 0.1, 0.3, 0.5, 0.7, 0.9}
}

func buildDriverConfig(cfg config.Config, cc *crosscat.CrossCat) driver.Config {
	return driver.Config{
		Seed:     int64(cfg.Seed),
		Cat:      cfg.Kernels.Cat,
		Kind:     cfg.Kernels.Kind,
		Hyper:    cfg.Kernels.Hyper,
		Schedule: cfg.Schedule,
		KindKernel: kindkernel.Config{
			Iterations:       int(cfg.Kernels.Kind.Iterations),
			EmptyKindCount:   int(cfg.Kernels.Kind.EmptyKindCount),
			ScoreParallel:    cfg.Kernels.Kind.ScoreParallel,
			GroupReserveSize: int(cfg.Kernels.Cat.EmptyGroupCount),
			KindAlpha:        cc.TopologyAlpha,
			KindDiscount:     cc.TopologyDiscount,
			MasterSeed:       int64(cfg.Seed),
		},
		HyperKernel: hyperkernel.Config{
			TopologyAlphaGrid:    logGrid(),
			TopologyDiscountGrid: discountGrid(),
			KindAlphaGrid:        logGrid(),
			KindDiscountGrid:     discountGrid(),
			FeatureGrid:          logGrid(),
			DPDAlphaGrid:         logGrid(),
			DPDGammaGrid:         logGrid(),
			MasterSeed:           int64(cfg.Seed),
		},
		Accelerating: schedule.Accelerating{},
	}
}

func runInfer(cmd *cobra.Command, args []string) error {
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

	var source stream.RowSource = rows
	d, err := driver.New(cc, source, buildDriverConfig(cfg, cc), cliLogger(), db, inferRunID)
	if err != nil {
		return err
	}

	finished, err := d.RunBatches(inferBatches)
	if err != nil {
		return err
	}
	cliLogger().Infof("infer: ran %d batches, finished=%v, tardis_iter=%d", inferBatches, finished, d.TardisIter())

	return WriteModelSpec(modelOut, spec)
}
