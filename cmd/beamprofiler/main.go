package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"beamprofiler/internal/models"
	"beamprofiler/pkg/config"
	"beamprofiler/pkg/profiler"
	"beamprofiler/pkg/source"
	"beamprofiler/pkg/visualization"
)

func main() {
	configPath := flag.String("config", "beamprofiler.yaml", "Path to YAML configuration")
	initConfig := flag.Bool("init-config", false, "Write a default configuration to -config and exit")
	imagePath := flag.String("image", "", "Image file, or directory with -latest (overrides source.path)")
	latest := flag.Bool("latest", false, "Read the newest image in the -image directory")
	resolution := flag.Float64("resolution", 0, "Length per pixel (overrides profiler.resolution)")
	sigmaSeed := flag.Float64("sigma-seed", 0, "Initial sigma guess in pixels (overrides profiler.sigmaSeed)")
	fromX := flag.Float64("from-x", 0, "ROI start on x axis")
	toX := flag.Float64("to-x", 0, "ROI end on x axis (negative = end of profile)")
	fromY := flag.Float64("from-y", 0, "ROI start on y axis")
	toY := flag.Float64("to-y", 0, "ROI end on y axis (negative = end of profile)")
	plotDir := flag.String("plot-dir", "", "Directory for fit plots (overrides output.plotDir)")
	watch := flag.Duration("watch", 0, "Repeat the measurement at this interval until interrupted")
	saveConfig := flag.Bool("save-config", false, "Write the effective configuration (including ROI) back to -config")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s (set profiler.sigmaSeed before use)\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the file
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *imagePath != "" {
		cfg.Source.Path = *imagePath
	}
	if *latest {
		cfg.Source.Mode = config.SourceLatest
	}
	if set["resolution"] {
		cfg.Profiler.Resolution = *resolution
	}
	if set["sigma-seed"] {
		cfg.Profiler.SigmaSeed = *sigmaSeed
	}
	if set["from-x"] || set["to-x"] {
		cfg.ROI.X = regionFromFlags(cfg.ROI.X, set["from-x"], *fromX, set["to-x"], *toX)
	}
	if set["from-y"] || set["to-y"] {
		cfg.ROI.Y = regionFromFlags(cfg.ROI.Y, set["from-y"], *fromY, set["to-y"], *toY)
	}
	if *plotDir != "" {
		cfg.Output.PlotDir = *plotDir
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Source.Path == "" {
		flag.Usage()
		os.Exit(1)
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Output.Verbose {
		logger = log.New(os.Stderr, "beamprofiler: ", log.LstdFlags)
	}

	var src source.ImageSource
	switch cfg.Source.Mode {
	case config.SourceLatest:
		src = source.NewLatestFileSource(cfg.Source.Path)
	default:
		src = source.NewFileSource(cfg.Source.Path)
	}

	prof, err := profiler.New(src, profiler.Options{
		Resolution: cfg.Profiler.Resolution,
		SigmaSeed:  cfg.Profiler.SigmaSeed,
		Unit:       cfg.Profiler.Unit,
		Fit:        cfg.FitSettings(),
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("Failed to create profiler: %v", err)
	}
	for _, axis := range models.Axes {
		roi := cfg.RegionFor(axis)
		if err := prof.SetROI(axis, float64(roi.From), float64(roi.To)); err != nil {
			log.Fatalf("Failed to set %s ROI: %v", axis, err)
		}
	}

	var viewer *visualization.Viewer
	if cfg.Output.PlotDir != "" {
		viewer = visualization.NewViewer(cfg.Output.PlotDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *watch <= 0 {
		if err := measureOnce(ctx, prof, viewer, ""); err != nil {
			log.Fatalf("Measurement failed: %v", err)
		}
	} else {
		watchLoop(ctx, prof, viewer, *watch)
	}

	if *saveConfig {
		for _, axis := range models.Axes {
			roi, err := prof.ROI(axis)
			if err != nil {
				log.Fatalf("Failed to read %s ROI: %v", axis, err)
			}
			cfg.SetRegion(axis, roi)
		}
		if err := config.SaveConfig(cfg, *configPath); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		fmt.Printf("Configuration saved to %s\n", *configPath)
	}
}

func regionFromFlags(roi models.RegionOfInterest, fromSet bool, from float64, toSet bool, to float64) models.RegionOfInterest {
	if fromSet {
		roi.From = int(from)
	}
	if toSet {
		if to < 0 {
			roi.To = models.Unbounded
		} else {
			roi.To = int(to)
		}
	}
	return roi
}

// watchLoop measures on every tick until ctx is cancelled. Failures are
// logged and polling continues, since the camera may come back.
func watchLoop(ctx context.Context, prof *profiler.Profiler, viewer *visualization.Viewer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stamp := time.Now().Format("20060102T150405")
		if err := measureOnce(ctx, prof, viewer, stamp); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Measurement failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func measureOnce(ctx context.Context, prof *profiler.Profiler, viewer *visualization.Viewer, stamp string) error {
	m, err := prof.Measure(ctx)
	if err != nil {
		return err
	}

	for _, axis := range models.Axes {
		am := m.ForAxis(axis)
		p := am.Fit.Params
		fmt.Printf("FWHM %s: %4.3f %s  (roi %v, mu=%.2f px, sigma=%.3f px, A=%.4g, c=%.4g)\n",
			axis, am.Width, m.Unit, am.Region, p.Mu, p.Sigma, p.A, p.C)
	}

	if viewer != nil {
		files, err := viewer.SaveMeasurement(m, stamp)
		if err != nil {
			log.Printf("Warning: Failed to save fit plots: %v", err)
		}
		for _, f := range files {
			fmt.Printf("Plot saved to: %s\n", f)
		}
	}
	return nil
}
