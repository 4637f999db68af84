package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/report"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List the reports configured to start with the engine",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		printReportsTable(cfg)
		return nil
	},
}

func printReportsTable(cfg *config.Config) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Name", "Kind", "Strategy", "Window", "Slot Duration", "Histogram"})

	for _, rc := range cfg.Reports {
		histogram := color.New(color.FgRed).Sprint("off")
		if rc.HistogramEnabled {
			histogram = color.New(color.FgGreen).Sprint("on")
		}

		strategy := "windowed"
		if rc.Strategy == report.General {
			strategy = "general"
		}

		tbl.AppendRow(table.Row{rc.Name, rc.Kind.String(), strategy, rc.WindowSize, rc.SlotDuration, histogram})
	}

	tbl.AppendFooter(table.Row{"", "", "", "", "Total", len(cfg.Reports)})
	fmt.Println(tbl.Render())
}
