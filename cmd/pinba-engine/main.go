// Command pinba-engine runs the UDP telemetry collection engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pinba-platform/pinba2/common/logging"
	"github.com/pinba-platform/pinba2/common/xcmd"
	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/engine"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pinba-engine",
	Short:         "UDP telemetry collection and aggregation engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runEngine(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(stateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, xcmd.Interrupted{}) {
			return
		}
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func runEngine(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&logging.Config{Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	if cfg.GopsAddr != "" {
		if err := agent.Listen(agent.Options{Addr: cfg.GopsAddr}); err != nil {
			return fmt.Errorf("failed to start gops agent: %w", err)
		}
	}

	e := engine.New(cfg, log)

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, e, log)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer stop()
	}

	ctx := context.Background()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.Run(ctx)
	})
	g.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return g.Wait()
}
