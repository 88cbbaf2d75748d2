package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ppview/internal/logging"
	"ppview/internal/session"
	"ppview/internal/tui"
	"ppview/pkg/config"
	"ppview/pkg/qepp"
	"ppview/pkg/scene"
	"ppview/pkg/visualization"
)

var (
	configFile string
	logLevel   string

	// render
	isoValue float64
	slider   int
	outDir   string
	formats  []string
	hidden   []string
	width    int
	height   int
	basename string
	refine   int

	// info
	axis int

	// slice
	sliceAxis  string
	sliceIndex int
	logScale   bool
	sliceOut   string

	// tui
	snapshot bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ppview",
		Short:         "isosurface viewer for Quantum Espresso post-processing files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "ppview.yaml", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")

	renderCmd := &cobra.Command{
		Use:   "render [file or folder]...",
		Short: "load files and folders and write the scene",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRender,
	}
	renderCmd.Flags().Float64Var(&isoValue, "iso", 0, "iso value (default from config)")
	renderCmd.Flags().IntVar(&slider, "slider", -2, "iso slider position, iso = 10^n for n in [-5,-1]")
	renderCmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	renderCmd.Flags().StringSliceVar(&formats, "format", nil, "output formats: png, obj, stl (default from config)")
	renderCmd.Flags().StringSliceVar(&hidden, "hide", nil, "loaded files whose surface is hidden")
	renderCmd.Flags().IntVar(&width, "width", 0, "snapshot width in pixels")
	renderCmd.Flags().IntVar(&height, "height", 0, "snapshot height in pixels")
	renderCmd.Flags().StringVar(&basename, "name", "", "output file name without extension")
	renderCmd.Flags().IntVar(&refine, "refine", 1, "resample fields this many times finer before contouring")

	infoCmd := &cobra.Command{
		Use:   "info [file]",
		Short: "describe a post-processing file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	infoCmd.Flags().IntVar(&axis, "axis", 2, "axis of the planar average plot (0, 1 or 2)")

	sliceCmd := &cobra.Command{
		Use:   "slice [file]",
		Short: "write grayscale slices of the field",
		Args:  cobra.ExactArgs(1),
		RunE:  runSlice,
	}
	sliceCmd.Flags().StringVar(&sliceAxis, "axis", "z", "slice axis: x, y or z")
	sliceCmd.Flags().IntVar(&sliceIndex, "index", -1, "slice index, -1 writes every slice")
	sliceCmd.Flags().BoolVar(&logScale, "log", false, "logarithmic intensity")
	sliceCmd.Flags().StringVar(&sliceOut, "out", "slices", "output directory")

	tuiCmd := &cobra.Command{
		Use:   "tui [file or folder]...",
		Short: "interactive terminal viewer",
		RunE:  runTUI,
	}
	tuiCmd.Flags().BoolVar(&snapshot, "snapshot", true, "write a PNG snapshot on every redraw")
	tuiCmd.Flags().StringVar(&outDir, "out", "", "snapshot directory (default from config)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "manage the config file",
	}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(renderCmd, infoCmd, sliceCmd, tuiCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the config file and builds the logger it describes
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	console := cfg.Logging.Console && logging.IsTerminal(os.Stderr)
	logger, err := logging.New(cfg.Logging.Level, console, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newSession(cfg *config.Config, logger zerolog.Logger) *session.Session {
	s := session.New(
		session.WithLogger(logger),
		session.WithIsoValue(cfg.Viewer.IsoValue),
		session.WithStopOnError(cfg.Loading.StopOnError),
		session.WithRefine(cfg.Viewer.Refine),
	)
	s.Scene().Background = scene.Color(cfg.Viewer.Background)
	return s
}

// buildPresenter creates one presenter per format, writing into dir
func buildPresenter(dir, name string, formats []string, width, height int) (visualization.MultiPresenter, error) {
	var out visualization.MultiPresenter
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case config.FormatPNG:
			out = append(out, visualization.NewSnapshotRenderer(filepath.Join(dir, name+".png"), width, height))
		case config.FormatOBJ:
			out = append(out, &visualization.OBJExporter{Path: filepath.Join(dir, name+".obj")})
		case config.FormatSTL:
			out = append(out, &visualization.STLExporter{Path: filepath.Join(dir, name+".stl")})
		default:
			return nil, fmt.Errorf("unknown output format %q", f)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no output format selected")
	}
	return out, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("out") {
		cfg.Output.Dir = outDir
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Formats = formats
	}
	if cmd.Flags().Changed("width") {
		cfg.Output.Width = width
	}
	if cmd.Flags().Changed("height") {
		cfg.Output.Height = height
	}
	if cmd.Flags().Changed("name") {
		cfg.Output.Basename = basename
	}
	if cmd.Flags().Changed("refine") {
		cfg.Viewer.Refine = refine
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s := newSession(cfg, logger)
	switch {
	case cmd.Flags().Changed("slider"):
		if err := s.SetIsoExponent(slider); err != nil {
			return err
		}
	case cmd.Flags().Changed("iso"):
		s.SetIsoValue(isoValue)
	}

	startTime := time.Now()
	n, loadErr := s.Drop(args...)
	if loadErr != nil {
		logger.Warn().Err(loadErr).Msg("some inputs could not be loaded")
	}
	if n == 0 {
		return fmt.Errorf("nothing to render: %w", errors.Join(loadErr, errors.New("no .pp files loaded")))
	}

	for _, h := range hidden {
		path := h
		for _, sub := range s.Subsystems() {
			if sub.Name == h {
				path = sub.Path
			}
		}
		if err := s.SetVisible(path, false); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	presenter, err := buildPresenter(cfg.Output.Dir, cfg.Output.Basename, cfg.Output.Formats, cfg.Output.Width, cfg.Output.Height)
	if err != nil {
		return err
	}
	s.SetPresenter(presenter)
	if err := s.Redraw(); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	fmt.Printf("Rendered %d file(s) at iso %g in %.2f seconds\n", s.Len(), s.IsoValue(), time.Since(startTime).Seconds())
	for _, sub := range s.Subsystems() {
		fmt.Printf("  %-24s %d triangles\n", sub.Name, len(sub.Mapper.Update().Triangles))
	}
	fmt.Printf("Output saved to: %s\n", cfg.Output.Dir)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	if _, _, err := setup(); err != nil {
		return err
	}
	sys, err := qepp.Read(args[0])
	if err != nil {
		return err
	}

	summary, err := visualization.Summarize(sys.Field)
	if err != nil {
		return err
	}

	fmt.Printf("file: %s\n", args[0])
	fmt.Printf("title: %s\n", sys.Title)
	fmt.Printf("plot_num: %d\n", sys.PlotNum)
	fmt.Printf("grid: %d x %d x %d\n", sys.Field.Shape[0], sys.Field.Shape[1], sys.Field.Shape[2])
	d := sys.Field.Diagonal()
	fmt.Printf("cell diagonal (bohr): %.4f %.4f %.4f\n", d.X, d.Y, d.Z)
	if !sys.Field.IsOrthogonal() {
		fmt.Println("warning: non-orthogonal lattice, surfaces use the diagonal only")
	}

	species := sys.Species()
	fmt.Printf("atoms: %d\n", len(sys.Atoms))
	for label, count := range species {
		fmt.Printf("  %-4s %d\n", label, count)
	}

	fmt.Printf("\nmin %.6g  max %.6g  mean %.6g  std %.6g\n", summary.Min, summary.Max, summary.Mean, summary.StdDev)
	fmt.Println("samples at or above each slider stop:")
	for _, tc := range summary.Thresholds {
		fmt.Printf("  1e%-3d %d\n", tc.Exponent, tc.Count)
	}

	avg, err := visualization.PlanarAverage(sys.Field, axis)
	if err != nil {
		return err
	}
	if len(avg) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(avg,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("planar average along axis %d", axis)),
		))
	}
	return nil
}

func runSlice(cmd *cobra.Command, args []string) error {
	_, logger, err := setup()
	if err != nil {
		return err
	}
	sys, err := qepp.Read(args[0])
	if err != nil {
		return err
	}

	viewer := visualization.NewViewer(sys.Field)
	viewer.SetLogScale(logScale)

	if sliceIndex < 0 {
		fmt.Printf("Saving %s-axis slices to: %s\n", sliceAxis, sliceOut)
		if err := viewer.SaveSliceSequence(sliceAxis, sliceOut); err != nil {
			return err
		}
		logger.Info().Str("axis", sliceAxis).Str("dir", sliceOut).Msg("slice extraction completed")
		return nil
	}

	img, err := viewer.ExtractSlice(sliceAxis, sliceIndex)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(sliceOut, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(sliceOut, fmt.Sprintf("slice_%s_%03d.png", sliceAxis, sliceIndex))
	if err := viewer.SaveSlice(img, path); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", path)
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("out") {
		cfg.Output.Dir = outDir
	}

	// The alternate screen owns the terminal, so log records go to a file
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	logFile, err := os.Create(filepath.Join(cfg.Output.Dir, "ppview.log"))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()
	logger, err := logging.New(cfg.Logging.Level, false, logFile)
	if err != nil {
		return err
	}

	s := newSession(cfg, logger)
	if snapshot {
		s.SetPresenter(visualization.NewSnapshotRenderer(
			filepath.Join(cfg.Output.Dir, cfg.Output.Basename+".png"), cfg.Output.Width, cfg.Output.Height))
	}
	if len(args) > 0 {
		if _, err := s.Drop(args...); err != nil {
			logger.Warn().Err(err).Msg("some inputs could not be loaded")
		}
	}

	return tui.Run(s)
}
