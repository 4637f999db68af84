package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pinba-platform/pinba2/internal/config"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the effective engine configuration as loaded from --config",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		printStateTable(cfg)
		return nil
	},
}

func printStateTable(cfg *config.Config) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Setting", "Value"})

	tbl.AppendRow(table.Row{"Listen address", fmt.Sprintf("%s:%d", cfg.Collector.Address, cfg.Collector.Port)})
	tbl.AppendRow(table.Row{"Collector threads", cfg.Collector.NThreads})
	tbl.AppendRow(table.Row{"Collector recv buffer", humanize.Bytes(uint64(cfg.Collector.RecvBufferSize))})
	tbl.AppendRow(table.Row{"Repacker threads", cfg.Repacker.NThreads})
	tbl.AppendRow(table.Row{"Repacker reap interval", cfg.Repacker.ReapInterval})
	tbl.AppendRow(table.Row{"Dictionary shards", cfg.Dictionary.Shards})
	tbl.AppendRow(table.Row{"Configured reports", len(cfg.Reports)})
	tbl.AppendRow(table.Row{"Gops agent", enabledBadge(cfg.GopsAddr != "")})
	tbl.AppendRow(table.Row{"Metrics endpoint", enabledBadge(cfg.MetricsAddr != "")})

	fmt.Println(tbl.Render())
}

func enabledBadge(on bool) string {
	if on {
		return color.New(color.FgGreen).Sprint("enabled")
	}
	return color.New(color.FgYellow).Sprint("disabled")
}
