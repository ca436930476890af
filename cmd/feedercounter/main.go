// Command feedercounter runs the vibratory-feeder part counter: a
// camera or recorded video feeds a classical detection pipeline,
// tracked blobs crossing a virtual gate line advance a packaging
// count, and the count drives a dual-vibrator speed schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/feedercounter/vibcounter/internal/feeder"
	"github.com/feedercounter/vibcounter/internal/feeder/config"
	"github.com/feedercounter/vibcounter/internal/feeder/detector"
	"github.com/feedercounter/vibcounter/internal/feeder/events"
	"github.com/feedercounter/vibcounter/internal/feeder/gate"
	"github.com/feedercounter/vibcounter/internal/feeder/packaging"
	"github.com/feedercounter/vibcounter/internal/feeder/pipeline"
	"github.com/feedercounter/vibcounter/internal/feeder/preview"
	"github.com/feedercounter/vibcounter/internal/feeder/recorder"
	"github.com/feedercounter/vibcounter/internal/feeder/source"
	"github.com/feedercounter/vibcounter/internal/feeder/tracker"
	"github.com/feedercounter/vibcounter/internal/feeder/vibrator"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to JSON configuration file")
	cameraID := flag.Int("camera", -1, "Camera device ID (overrides config)")
	filePath := flag.String("file", "", "Path to a recorded video file instead of a live camera")
	targetCount := flag.Int("target", 0, "Packaging target count (overrides config)")
	showPreview := flag.Bool("preview", false, "Show a debug preview window")
	verbose := flag.Bool("verbose", false, "Enable verbose event logging")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "feedercounter - vibratory feeder part counter\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                          # Run with default settings\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config feeder.json      # Run with custom config\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -target 250 -preview     # Override batch target, show preview\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -file run1.avi -verbose  # Replay a recorded run\n", os.Args[0])
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("feedercounter version %s\n", version)
		os.Exit(0)
	}

	manager, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	cfg := manager.Snapshot()

	if *cameraID >= 0 {
		if err := manager.Set(func(c *config.Config) { c.Camera.DeviceID = *cameraID }); err != nil {
			log.Fatalf("applying -camera override: %v", err)
		}
	}
	if *targetCount > 0 {
		if err := manager.Set(func(c *config.Config) { c.Packaging.TargetCount = *targetCount }); err != nil {
			log.Fatalf("applying -target override: %v", err)
		}
	}
	cfg = manager.Snapshot()

	if *verbose {
		log.Printf("Configuration:")
		log.Printf("  Camera: device=%d, %dx%d@%dfps", cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
		log.Printf("  Packaging: target=%d, advance_stop=%d", cfg.Packaging.TargetCount, cfg.Packaging.AdvanceStopCount)
		log.Printf("  Gate: enabled=%v, line_ratio=%.2f", cfg.Gate.EnableGateCounting, cfg.Gate.GateLinePositionRatio)
	}

	bus := events.NewBus()
	defer bus.Close()

	var src feeder.Source
	var rec pipeline.Recorder

	if *filePath != "" {
		f := source.NewFile(*filePath, cfg.Camera.FPS, bus)
		if err := f.Open(); err != nil {
			log.Fatalf("opening video file %s: %v", *filePath, err)
		}
		src = f
	} else {
		cam := source.NewCamera(cfg.Camera.DeviceID)
		if err := cam.Open(cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS); err != nil {
			log.Fatalf("opening camera %d: %v", cfg.Camera.DeviceID, err)
		}
		src = cam

		rw, err := recorder.Open(fmt.Sprintf("run-%d.avi", os.Getpid()), cfg.Camera.Width, cfg.Camera.Height, float64(cfg.Camera.FPS))
		if err != nil {
			log.Printf("recorder disabled: %v", err)
		} else {
			rec = rw
			defer rw.Close()
		}
	}

	det := detector.NewAuto(detector.NewGoCV(), &detector.YOLO{})

	var vibA, vibB feeder.Vibrator
	if cfg.Vibrator.Simulated {
		vibA, vibB = vibrator.NewSim(), vibrator.NewSim()
	} else {
		a, err := vibrator.NewGPIO(cfg.Vibrator.PinNameA)
		if err != nil {
			log.Fatalf("opening vibrator pin %s: %v", cfg.Vibrator.PinNameA, err)
		}
		b, err := vibrator.NewGPIO(cfg.Vibrator.PinNameB)
		if err != nil {
			log.Fatalf("opening vibrator pin %s: %v", cfg.Vibrator.PinNameB, err)
		}
		vibA, vibB = a, b
	}
	defer vibA.Close()
	defer vibB.Close()

	trk := tracker.New(cfg.Tracking)
	gc := gate.New(cfg.Gate, cfg.Tracking, cfg.Camera.Height)
	pkg := packaging.New(cfg.Packaging, bus, vibA, vibB)

	proc := pipeline.New(manager, src, rec, det, trk, gc, pkg, bus)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	if err := proc.Start(ctx); err != nil {
		log.Fatalf("starting processor: %v", err)
	}
	defer proc.Close()
	log.Println("feedercounter running. Press Ctrl+C to stop.")

	var win *preview.Window
	if *showPreview {
		win = preview.NewWindow("feedercounter preview")
		defer win.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sub := bus.Subscribe()
	for {
		select {
		case sig := <-sigCh:
			log.Printf("received signal %v, shutting down", sig)
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if *verbose {
				logEvent(ev)
			}
			if ev.Kind == events.KindPackagingCompleted {
				log.Printf("batch complete: %d parts", gc.Count())
			}
		}
	}
}

func logEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindFrameCaptured, events.KindFPS:
		// high-frequency events, skip in the verbose log
	default:
		log.Printf("event: %s data=%v", ev.Kind, ev.Data)
	}
}
