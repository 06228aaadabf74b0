package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hyperanf/internal/export"
)

// defaultPlotOutput is where the rendered chart lands without -o.
const defaultPlotOutput = "neighbourhood.html"

// PlotCommand holds configuration for the plot command.
type PlotCommand struct {
	output string
	title  string
}

// NewPlotCommand creates the plot command.
func NewPlotCommand() *cobra.Command {
	pc := &PlotCommand{}

	cmd := &cobra.Command{
		Use:   "plot <results.csv>",
		Short: "Render the neighbourhood function growth curve",
		Long: "Read a results file produced by 'run' and render the total " +
			"neighbourhood function N(t) per round as an HTML line chart.",
		Args: cobra.ExactArgs(1),
		RunE: pc.run,
	}

	cmd.Flags().StringVarP(&pc.output, "output", "o", defaultPlotOutput, "Output HTML path")
	cmd.Flags().StringVar(&pc.title, "title", "Neighbourhood function", "Chart title")

	return cmd
}

func (pc *PlotCommand) run(_ *cobra.Command, args []string) error {
	sums, err := export.ReadRoundSums(args[0])
	if err != nil {
		return err
	}

	line := buildGrowthChart(pc.title, sums)

	file, err := os.Create(pc.output)
	if err != nil {
		return fmt.Errorf("create chart output: %w", err)
	}
	defer file.Close()

	renderErr := line.Render(file)
	if renderErr != nil {
		return fmt.Errorf("render chart: %w", renderErr)
	}

	return nil
}

// buildGrowthChart plots N(t) against the round number t.
func buildGrowthChart(title string, sums []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Round (hops)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Reachable pairs"}),
	)

	labels := make([]string, len(sums))
	data := make([]opts.LineData, len(sums))

	for t, sum := range sums {
		labels[t] = strconv.Itoa(t)
		data[t] = opts.LineData{Value: sum}
	}

	line.SetXAxis(labels)
	line.AddSeries("N(t)", data)

	return line
}
