// Package commands implements CLI command handlers for hyperanf.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hyperanf/internal/export"
	"github.com/Sumatoshi-tech/hyperanf/internal/observability"
	"github.com/Sumatoshi-tech/hyperanf/internal/stats"
	"github.com/Sumatoshi-tech/hyperanf/pkg/anf"
	"github.com/Sumatoshi-tech/hyperanf/pkg/config"
	"github.com/Sumatoshi-tech/hyperanf/pkg/graph"
)

// summaryFloatDigits is the digit count for float cells in the summary table.
const summaryFloatDigits = 2

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath  string
	output      string
	precision   int
	workers     int
	maxRounds   int
	metricsAddr string
	silent      bool
	noColor     bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run <edge-list>",
		Short: "Estimate the neighbourhood function of an edge list",
		Long: "Run HyperLogLog sketch propagation over an undirected edge list " +
			"and write per-round cardinality estimates to a CSV file.",
		Args: cobra.ExactArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: ./hyperanf.yaml if present)")
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "Result CSV path; '.lz4' suffix enables compression (default out.csv)")
	cmd.Flags().IntVarP(&rc.precision, "precision", "p", 0, "Sketch precision in [4, 16] (default 10)")
	cmd.Flags().IntVar(&rc.workers, "workers", 0, "Number of parallel workers (0 = use CPU count)")
	cmd.Flags().IntVar(&rc.maxRounds, "max-rounds", 0, "Stop after this many rounds even without convergence (0 = no limit)")
	cmd.Flags().StringVar(&rc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&rc.silent, "silent", false, "Disable progress output")
	cmd.Flags().BoolVar(&rc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := rc.loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := rc.newLogger(cmd.ErrOrStderr(), cfg.Logging)

	g, err := loadGraph(args[0])
	if err != nil {
		return err
	}

	logger.Info("graph loaded",
		"nodes", humanize.Comma(int64(g.NumNodes())),
		"edges", humanize.Comma(int64(g.NumEdges())))

	exporter, closeSink := rc.openSink(g, cfg.Output.Path, logger)
	if closeSink != nil {
		defer closeSink()
	}

	var metrics *observability.Metrics

	if cfg.Output.MetricsAddr != "" {
		metrics = observability.NewMetrics()
		metrics.Nodes.Set(float64(g.NumNodes()))
		metrics.Serve(cfg.Output.MetricsAddr, logger)

		exporter = observability.NewRoundObserver(exporter, metrics)
	}

	engine, err := anf.New(g, anf.Config{
		Precision: uint8(cfg.Run.Precision),
		Workers:   cfg.Run.Workers,
		MaxRounds: cfg.Run.MaxRounds,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	result, err := engine.Run(cmd.Context(), exporter)
	if err != nil {
		return err
	}

	summary := stats.Summarize(result.RoundSums, result.Estimates, cfg.Output.EffectiveDiameterFraction)

	rc.printSummary(cmd.OutOrStdout(), summary, result.Converged, cfg.Output.Path)

	return nil
}

// loadConfig merges the config file, environment and explicit flags.
// Flags win over file and environment values.
func (rc *RunCommand) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("precision") {
		cfg.Run.Precision = rc.precision
	}

	if cmd.Flags().Changed("workers") {
		cfg.Run.Workers = rc.workers
	}

	if cmd.Flags().Changed("max-rounds") {
		cfg.Run.MaxRounds = rc.maxRounds
	}

	if cmd.Flags().Changed("output") {
		cfg.Output.Path = rc.output
	}

	if cmd.Flags().Changed("metrics-addr") {
		cfg.Output.MetricsAddr = rc.metricsAddr
	}

	return cfg, nil
}

// newLogger builds the progress logger from the logging configuration.
func (rc *RunCommand) newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	if rc.silent {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var level slog.Level

	levelErr := level.UnmarshalText([]byte(cfg.Level))
	if levelErr != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// openSink opens the per-round CSV sink. A sink that cannot be opened is
// reported loudly but does not stop the computation: convergence does not
// depend on export succeeding.
func (rc *RunCommand) openSink(g *graph.Graph, path string, logger *slog.Logger) (anf.Exporter, func()) {
	sink, err := export.NewCSVSink(g, path)
	if err != nil {
		logger.Error("output sink unavailable, continuing without export", "path", path, "error", err)

		return nil, nil
	}

	closeSink := func() {
		closeErr := sink.Close()
		if closeErr != nil {
			logger.Error("closing output sink failed", "path", path, "error", closeErr)
		}
	}

	return sink, closeSink
}

// printSummary renders the run summary table.
func (rc *RunCommand) printSummary(w io.Writer, summary stats.Summary, converged bool, outputPath string) {
	if rc.noColor {
		color.NoColor = true
	}

	if converged {
		fmt.Fprintln(w, color.New(color.FgGreen, color.Bold).Sprintf(
			"converged after %d rounds", summary.Rounds))
	} else {
		fmt.Fprintln(w, color.New(color.FgYellow, color.Bold).Sprintf(
			"stopped before convergence at round %d", summary.Rounds))
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendRows([]table.Row{
		{"Nodes", humanize.Comma(int64(summary.Nodes))},
		{"Rounds", summary.Rounds},
		{"Reachable pairs", humanize.CommafWithDigits(summary.FinalSum, summaryFloatDigits)},
		{"Effective diameter", fmt.Sprintf("%.2f", summary.EffectiveDiameter)},
		{"Average distance", fmt.Sprintf("%.2f", summary.AverageDistance)},
		{"Results", outputPath},
	})
	tw.Render()
}

// loadGraph reads and indexes the edge list file.
func loadGraph(path string) (*graph.Graph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edge list: %w", err)
	}
	defer file.Close()

	edges, err := graph.ReadEdges(file)
	if err != nil {
		return nil, err
	}

	return graph.New(edges), nil
}
