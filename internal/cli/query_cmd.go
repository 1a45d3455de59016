package cli

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/crosscatio/crosscat/internal/api"
)

var (
	queryAddr    string
	queryMetrics bool
)

var queryCmd = &cobra.Command{
	Use:   "query MODEL_IN",
	Short: "serve the scoring API over a loaded model (spec.md §6 query/predict)",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryAddr, "addr", ":8080", "HTTP listen address")
	queryCmd.Flags().BoolVar(&queryMetrics, "metrics", true, "expose /metrics")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	modelIn := args[0]

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

	srv := api.NewServer(cc, int64(cfg.Seed))
	if queryMetrics {
		srv.EnableMetrics()
	}

	cliLogger().Infof("query: serving %s", queryAddr)
	return http.ListenAndServe(queryAddr, srv.Handler())
}
