package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/deformsim/internal/asset"
	"github.com/san-kum/deformsim/internal/batch"
	"github.com/san-kum/deformsim/internal/cache"
	"github.com/san-kum/deformsim/internal/config"
	"github.com/san-kum/deformsim/internal/deformable"
	"github.com/san-kum/deformsim/internal/metrics"
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/scene"
	"github.com/san-kum/deformsim/internal/sim"
	"github.com/san-kum/deformsim/internal/storage"
	"github.com/san-kum/deformsim/internal/viz"
)

// loadConfig applies the preset, then the config file, then any flag the
// user set explicitly. It returns the directory asset paths resolve against.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg := config.GetPreset(preset)
	if cfg == nil {
		return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}

	assetDir := "."
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		assetDir = filepath.Dir(configFile)
	}

	f := cmd.Flags()
	if f.Changed("frames") {
		cfg.Frames = frames
	}
	if f.Changed("rate") {
		cfg.FrameRate = frameRate
	}
	if f.Changed("threaded") {
		cfg.Threaded = threaded
	}
	if f.Changed("wait") {
		cfg.WaitForCompletion = waitDone
	}
	if f.Changed("policy") {
		cfg.OutputPolicy = policy
	}
	if f.Changed("substeps") {
		cfg.Substeps = substeps
	}
	if f.Changed("iterations") {
		cfg.Iterations = iterations
	}
	return cfg, assetDir, nil
}

func buildSim(cfg *config.Config, assetDir string, opts ...owner.Option) (*sim.Simulator, owner.Config, error) {
	oc, err := cfg.Owner()
	if err != nil {
		return nil, oc, err
	}
	o, err := owner.New(oc, append([]owner.Option{owner.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, oc, err
	}
	sc, err := scene.Build(scene.NewRegistry(), cfg.Scene, assetDir)
	if err != nil {
		o.Close()
		return nil, oc, err
	}
	s := sim.New(o, sc)
	for _, m := range metrics.Defaults() {
		s.AddMetric(m)
	}
	return s, oc, nil
}

func cachePath() string {
	if cacheFile != "" {
		return cacheFile
	}
	return filepath.Join(dataDir, "frames.db")
}

func runScene(cmd *cobra.Command, args []string) error {
	cfg, assetDir, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if record && cfg.OutputPolicy != owner.Lossless.String() {
		logger.Info("recording forces the lossless output policy")
		cfg.OutputPolicy = owner.Lossless.String()
	}

	var (
		opts []owner.Option
		rec  *cache.Recorder
	)
	if record {
		oc, err := cfg.Owner()
		if err != nil {
			return err
		}
		fc, err := cache.Open(cachePath())
		if err != nil {
			return err
		}
		defer fc.Close()
		rec, err = fc.NewRun(preset, oc)
		if err != nil {
			return err
		}
		opts = append(opts, owner.WithObserver(rec))
	}

	s, oc, err := buildSim(cfg, assetDir, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("running", "preset", preset, "frames", cfg.Frames, "threaded", oc.Threaded, "policy", oc.Policy)
	result, err := s.Run(ctx, sim.Config{Frames: cfg.Frames, Dt: cfg.Dt()})
	if err != nil && ctx.Err() == nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		Name:       preset,
		Dt:         cfg.Dt(),
		Threaded:   oc.Threaded,
		Policy:     oc.Policy.String(),
		Substeps:   oc.Solver.Substeps,
		Iterations: oc.Solver.Iterations,
	}, result)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(viz.Title.Render("run "+runID) + "\n")
	b.WriteString(viz.Metric("Frames", fmt.Sprintf("%d", len(result.Samples))) + "\n")
	b.WriteString(viz.Metric("Elapsed", result.Elapsed.String()) + "\n")
	b.WriteString(viz.Metric("Deferred", fmt.Sprintf("%d", result.Ticks.Deferred)) + "\n")
	b.WriteString(viz.Metric("Discarded", fmt.Sprintf("%d", result.Ticks.Discarded)) + "\n")
	b.WriteString(viz.Metric("Overflowed", fmt.Sprintf("%d", result.Solver.Overflowed)) + "\n")
	for _, name := range []string{"staleness", "max_staleness", "sag", "strain"} {
		b.WriteString(viz.Metric(name, fmt.Sprintf("%.4f", result.Metrics[name])) + "\n")
	}
	if rec != nil {
		if rec.Err() != nil {
			logger.Error("frame recording stopped", "err", rec.Err())
		}
		b.WriteString(viz.Metric("Cached", fmt.Sprintf("run %d, %d frames", rec.ID(), rec.Recorded())) + "\n")
	}
	fmt.Println(viz.Panel.Render(strings.TrimRight(b.String(), "\n")))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, assetDir, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the alt screen owns the terminal
	logger.SetOutput(io.Discard)

	s, _, err := buildSim(cfg, assetDir)
	if err != nil {
		return err
	}
	defer s.Close()
	return viz.Run(s, cfg.Dt())
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, assetDir, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	e := batch.NewEnsemble(cfg, runs)
	e.SetAssetDir(assetDir)
	if parallel > 0 {
		e.SetParallel(parallel)
	}
	if verbose {
		e.SetLogger(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("benchmarking", "preset", preset, "runs", runs, "frames", cfg.Frames, "threaded", cfg.Threaded)
	results, err := e.Run(ctx)
	if err != nil {
		return err
	}
	sum := batch.Summarize(results)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUNS\tFRAMES\tMEAN\tMAX\tFRAMES/SEC\tSTALENESS\tMAX STALE\tDEFERRED\tDISCARDED\tOVERFLOWED")
	fmt.Fprintf(w, "%d\t%d\t%v\t%v\t%.0f\t%.2f\t%.0f\t%d\t%d\t%d\n",
		sum.Runs, sum.Frames, sum.MeanElapsed, sum.MaxElapsed, sum.FramesPerSec,
		sum.MeanStaleness, sum.MaxStaleness, sum.Deferred, sum.Discarded, sum.Overflowed)
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tFRAMES\tMODE\tPOLICY\tSTALENESS\tSAG")
	for _, run := range runs {
		mode := "inline"
		if run.Threaded {
			mode = "threaded"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%.2f\t%.3f\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Frames,
			mode,
			run.Policy,
			run.Metrics["staleness"],
			run.Metrics["sag"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadFrames(runID)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("policy: %s threaded: %v\n", meta.Policy, meta.Threaded)
	fmt.Printf("samples: %d\n\n", len(samples))

	sag := make([]float64, len(samples))
	stale := make([]float64, len(samples))
	for i, s := range samples {
		sag[i] = s.Sag
		stale[i] = float64(s.Staleness)
	}

	for _, series := range []struct {
		data    []float64
		caption string
	}{
		{sag, "lowest cloth vertex (z)"},
		{stale, "applied package staleness (frames)"},
	} {
		fmt.Println(asciigraph.Plot(series.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(series.caption),
		))
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	w := io.Writer(os.Stdout)
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return storage.New(dataDir).Export(w, args[0])
}

func replayRun(cmd *cobra.Command, args []string) error {
	fc, err := cache.Open(cachePath())
	if err != nil {
		return err
	}
	defer fc.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if len(args) == 0 {
		infos, err := fc.Runs()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("no cached runs")
			return nil
		}
		fmt.Fprintln(w, "ID\tNAME\tCREATED\tPOLICY\tTHREADED\tFRAMES")
		for _, r := range infos {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t%d\n",
				r.ID, r.Name, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Policy, r.Threaded, r.Frames)
		}
		return w.Flush()
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid cache run id %q", args[0])
	}

	if seq >= 0 {
		bufs, err := fc.Buffers(id, seq)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "PROXY\tKIND\tVERTICES\tLOWEST\tSTRAIN")
		for _, b := range bufs {
			fmt.Fprintf(w, "%d\t%s\t%d\t%.3f\t%.4f\n",
				b.Proxy, b.Kind, len(b.Positions), deformable.MinZ(b.Positions), b.Strain)
		}
		return w.Flush()
	}

	recs, err := fc.Frames(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "SEQ\tFRAME\tAPPLIED ON\tPROXIES")
	for _, f := range recs {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", f.Seq, f.Frame, f.AppliedOn, f.Proxies)
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tTHREADED\tPOLICY\tSUBSTEPS\tITERATIONS\tOBJECTS\tFRAMES")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%v\t%s\t%d\t%d\t%d\t%d\n",
			name, cfg.Threaded, cfg.OutputPolicy, cfg.Substeps, cfg.Iterations, len(cfg.Scene.Objects), cfg.Frames)
	}
	return w.Flush()
}

func writeMesh(cmd *cobra.Command, args []string) error {
	kind, path := args[0], args[1]
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var mesh *asset.RestMesh
	switch kind {
	case asset.KindCloth:
		mesh = asset.ClothGrid(name, cols, rows, spacing)
	case asset.KindFlesh:
		mesh = asset.FleshBar(name, segments, length)
	default:
		return fmt.Errorf("%w: %s", asset.ErrUnknownKind, kind)
	}
	if err := asset.Save(path, mesh); err != nil {
		return err
	}
	logger.Info("mesh written", "path", path, "vertices", mesh.VertexCount(), "edges", len(mesh.Edges))
	return nil
}
