package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	cacheFile  string
	verbose    bool
	configFile string
	preset     string
	frames     int
	frameRate  float64
	threaded   bool
	waitDone   bool
	policy     string
	substeps   int
	iterations int
	record     bool
	runs       int
	parallel   int
	seq        int
	outFile    string
	cols       int
	rows       int
	spacing    float64
	segments   int
	length     float64

	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "deformsim",
	})
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "deformsim",
		Short:         "deformable physics handoff lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".deformsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&cacheFile, "cache", "", "frame cache database (default <data>/frames.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a scene headless and archive the result",
		Args:  cobra.NoArgs,
		RunE:  runScene,
	}
	sceneFlags(runCmd)
	runCmd.Flags().BoolVar(&record, "record", false, "record every frame to the cache (forces lossless output)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a scene with live terminal visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	sceneFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "run many owners concurrently and report throughput",
		Args:  cobra.NoArgs,
		RunE:  runBench,
	}
	sceneFlags(benchCmd)
	benchCmd.Flags().IntVar(&runs, "runs", 8, "number of runs")
	benchCmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent runs (0 = GOMAXPROCS)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list archived runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot sag and staleness of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export an archived run as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	replayCmd := &cobra.Command{
		Use:   "replay [cache_run]",
		Short: "list cached runs, or the frames of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  replayRun,
	}
	replayCmd.Flags().IntVar(&seq, "seq", -1, "show the buffers of one recorded package")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	meshCmd := &cobra.Command{
		Use:   "mesh [cloth|flesh] [path]",
		Short: "generate a rest mesh asset",
		Args:  cobra.ExactArgs(2),
		RunE:  writeMesh,
	}
	meshCmd.Flags().IntVar(&cols, "cols", 12, "cloth columns")
	meshCmd.Flags().IntVar(&rows, "rows", 8, "cloth rows")
	meshCmd.Flags().Float64Var(&spacing, "spacing", 0.25, "cloth vertex spacing")
	meshCmd.Flags().IntVar(&segments, "segments", 10, "flesh segments")
	meshCmd.Flags().Float64Var(&length, "length", 2.0, "flesh length")

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, listCmd, plotCmd, exportCmd, replayCmd, presetsCmd, meshCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func sceneFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "default", "configuration preset")
	cmd.Flags().IntVar(&frames, "frames", 600, "frames to run")
	cmd.Flags().Float64Var(&frameRate, "rate", 60, "frame rate")
	cmd.Flags().BoolVar(&threaded, "threaded", false, "run Simulate on its own goroutine")
	cmd.Flags().BoolVar(&waitDone, "wait", false, "wait for each threaded step within its tick")
	cmd.Flags().StringVar(&policy, "policy", "latest", "output policy (latest, lossless)")
	cmd.Flags().IntVar(&substeps, "substeps", 2, "solver substeps")
	cmd.Flags().IntVar(&iterations, "iterations", 4, "solver constraint iterations")
}
