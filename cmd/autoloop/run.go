package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/autoresearch/autoloop/internal/cli"
	"github.com/autoresearch/autoloop/internal/logging"
	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/observability"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the closed research loop",
	Long: `Executes the workflow from the config file: each cycle proposes
conditions, deploys them to the configured runner, waits for participant
data, and fits a fresh model.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		resume, _ := cmd.Flags().GetBool("resume")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		logger := logging.New(logLevel(cfg.Log.Level))

		store, err := cli.BuildStore(cfg)
		if err != nil {
			fmt.Printf("Error building store: %v\n", err)
			os.Exit(1)
		}

		reg := prometheus.NewRegistry()
		metrics := observability.NewMetrics(reg)

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				logger.Info("metrics listening", "addr", metricsAddr)
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					logger.Error("metrics server stopped", "error", err)
				}
			}()
		}

		engine, err := cli.BuildEngine(cfg, store, metrics.Hooks(), logger)
		if err != nil {
			fmt.Printf("Error building engine: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var state *domain.State
		if resume {
			if cfg.Session == "" {
				fmt.Println("Error: --resume requires a session name in the config")
				os.Exit(1)
			}
			state, err = engine.Resume(ctx, cfg.Session)
		} else {
			state, err = engine.Run(ctx, cfg.Session, cfg.Variables)
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		printSummary(os.Stdout, state)
	},
}

func printSummary(w io.Writer, state *domain.State) {
	fmt.Fprintf(w, "Session %s finished after cycle %d with %d trials.\n",
		state.SessionID, state.Cycle, len(state.Trials))

	model, ok := state.LatestModel()
	if !ok {
		fmt.Fprintln(w, "No model was fitted.")
		return
	}

	fmt.Fprintf(w, "Latest model (%s) for %s:\n", model.Kind, model.Target)
	fmt.Fprintf(w, "  intercept: %.4f\n", model.Intercept)
	for i, feature := range model.Features {
		fmt.Fprintf(w, "  %s: %.4f\n", feature, model.Coefficients[i])
	}
	fmt.Fprintf(w, "  r_squared: %.4f  rmse: %.4f\n", model.RSquared, model.RMSE)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("resume", false, "Resume the stored session instead of starting fresh")
	runCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address while running (e.g. :9090)")
}
