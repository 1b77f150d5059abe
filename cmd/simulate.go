package cmd

import (
	"fmt"
	"log/slog"

	"charm.land/lipgloss/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/service"
	"github.com/gioe/aiq/internal/session"
	"github.com/gioe/aiq/internal/simulation"
	"github.com/gioe/aiq/internal/store"
	"github.com/gioe/aiq/internal/telemetry"
	"github.com/gioe/aiq/internal/ui/report"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated examinees through the engine",
	Long: `Draws examinees with known ability, answers each administered item from the
response model and reports how well the engine recovers the true ability.
The pool comes from --pool (a file or URL) or, when omitted, the current
stored snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()

		simCfg := simulation.DefaultConfig()
		simCfg.Examinees, _ = flags.GetInt("examinees")
		simCfg.Seed, _ = flags.GetUint64("seed")
		simCfg.Workers, _ = flags.GetInt("workers")
		simCfg.ThetaMin, _ = flags.GetFloat64("theta-min")
		simCfg.ThetaMax, _ = flags.GetFloat64("theta-max")
		persist, _ := flags.GetBool("persist")
		metricsFile, _ := flags.GetString("metrics-file")

		var st *store.Store
		if persist {
			var err error
			if st, err = openStore(); err != nil {
				return err
			}
			defer st.Close()
			simCfg.ExamineePrefix = "sim"
		}

		pool, err := simulationPool(cmd, st)
		if err != nil {
			return err
		}
		feed, err := itempool.NewFeed(pool)
		if err != nil {
			return err
		}

		engine, err := session.NewEngine(cfg.Engine(), slog.Default())
		if err != nil {
			return err
		}
		reg := prometheus.NewRegistry()
		opts := []service.Option{
			service.WithMetrics(telemetry.NewMetrics(reg)),
			service.WithLogger(slog.Default()),
		}
		if st != nil {
			opts = append(opts, service.WithResultSaver(st.ResultRepo()))
		}
		mgr, err := service.NewManager(engine, feed, opts...)
		if err != nil {
			return err
		}

		rep, err := simulation.Run(ctx, mgr, simCfg)
		if err != nil {
			return err
		}
		lipgloss.Fprintln(cmd.OutOrStdout(), report.Simulation(rep))

		if metricsFile != "" {
			if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}
		return nil
	},
}

func init() {
	def := simulation.DefaultConfig()
	simulateCmd.Flags().String("pool", "", "Pool document (file or URL); defaults to the stored current pool")
	simulateCmd.Flags().String("checksums", "", "URL of a checksums file for a remote --pool")
	simulateCmd.Flags().Int("examinees", def.Examinees, "Number of simulated examinees")
	simulateCmd.Flags().Uint64("seed", def.Seed, "Master seed; equal seeds reproduce a run")
	simulateCmd.Flags().Int("workers", 0, "Concurrent sessions (0 = GOMAXPROCS)")
	simulateCmd.Flags().Float64("theta-min", def.ThetaMin, "Lowest true ability")
	simulateCmd.Flags().Float64("theta-max", def.ThetaMax, "Highest true ability")
	simulateCmd.Flags().Bool("persist", false, "Store every finished session in the database")
	simulateCmd.Flags().String("metrics-file", "", "Write session metrics in Prometheus text format to this file")
}

func simulationPool(cmd *cobra.Command, st *store.Store) (*itempool.Pool, error) {
	src, _ := cmd.Flags().GetString("pool")
	if src != "" {
		checksums, _ := cmd.Flags().GetString("checksums")
		dec, err := decodePool(cmd.Context(), src, checksums)
		if err != nil {
			return nil, err
		}
		for _, rej := range dec.Rejected {
			slog.Warn("item refused", "source", src, "error", rej)
		}
		return itempool.NewPool(dec.Snapshot)
	}

	if st == nil {
		var err error
		if st, err = openStore(); err != nil {
			return nil, err
		}
		defer st.Close()
	}
	provider := &store.PoolProvider{Repo: st.PoolRepo(), Filter: cfg.Calibration}
	pool, err := provider.LoadPool(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("load current pool (import one with `aiq pool import` or pass --pool): %w", err)
	}
	return pool, nil
}
