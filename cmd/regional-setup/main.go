// Package main builds MOM6 regional input files from a TOML experiment file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go.ngs.io/regional-ocean/internal/config"
	"go.ngs.io/regional-ocean/internal/usecase"
)

const version = "0.1.0"

var (
	configFile string
	workers    int
	jsonOut    bool
)

// rootCmd is the main command.
var rootCmd = &cobra.Command{
	Use:   "regional-setup",
	Short: "Regrid ocean reanalysis data into MOM6 regional inputs.",
	Long: "Builds the horizontal and vertical grids, the initial condition, the open-boundary\n" +
		"segments and the tidal forcing of a regional MOM6 experiment.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./experiment.toml", "experiment configuration file")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "override the configured worker count")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print run statuses as JSON")

	rootCmd.AddCommand(
		stageCmd("grid", "Write the supergrid and vertical grid", (*usecase.Runner).Grid),
		stageCmd("initial-condition", "Regrid the initial condition at the reference time", (*usecase.Runner).InitialCondition),
		stageCmd("segments", "Regrid every open-boundary segment", (*usecase.Runner).Segments),
		stageCmd("tides", "Sample tidal constituents along every boundary", (*usecase.Runner).Tides),
		runCmd,
		validateCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config and builds the runner for one command.
func setup() (*usecase.Runner, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	log := cfg.Logger()
	log.WithFields(logrus.Fields{"config": configFile, "experiment": cfg.Name, "output_dir": cfg.OutputDir}).Info("loading experiment")
	r, err := usecase.Setup(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return r, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func stageCmd(use, short string, stage func(*usecase.Runner, context.Context) (*usecase.RunStatus, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			ctx, cancel := signalContext()
			defer cancel()

			s, err := stage(r, ctx)
			report(log, s)
			return err
		},
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		ctx, cancel := signalContext()
		defer cancel()

		statuses, err := r.All(ctx)
		for _, s := range statuses {
			report(log, s)
		}
		return err
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file without running anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		boundaries, err := cfg.ResolveBoundaries()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d boundaries, %d layers)\n", cfg.Name, len(boundaries), cfg.Vertical.Layers)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "regional-setup v%s\n", version)
	},
}

func report(log logrus.FieldLogger, s *usecase.RunStatus) {
	if s == nil {
		return
	}
	if jsonOut {
		b, err := json.MarshalIndent(s, "", "  ")
		if err == nil {
			fmt.Println(string(b))
		}
		return
	}
	entry := log.WithFields(logrus.Fields{
		"stage":    s.Kind,
		"outputs":  len(s.Outputs),
		"skipped":  len(s.Skipped),
		"duration": s.Finished.Sub(s.Started).Round(time.Millisecond),
	})
	if s.Error != "" {
		entry.WithField("error", s.Error).Error("stage failed")
		return
	}
	entry.Info("stage finished")
}
