package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/murmur/config"
	"github.com/pthm-cable/murmur/engine"
	"github.com/pthm-cable/murmur/server"
	"github.com/pthm-cable/murmur/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	serveAddr := flag.String("serve", "", "Serve the websocket debug feed on this address (empty = disabled)")
	frameEvery := flag.Int("frame-every", 4, "Broadcast a frame every N ticks when serving")
	realtime := flag.Bool("realtime", false, "Pace ticks to wall-clock dt instead of running flat out")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var output *telemetry.OutputManager
	if *outputDir != "" {
		runDir := filepath.Join(*outputDir, uuid.NewString())
		var err error
		output, err = telemetry.NewOutputManager(runDir)
		if err != nil {
			slog.Error("failed to create output dir", "error", err)
			os.Exit(1)
		}
		defer output.Close()

		if err := output.WriteConfig(cfg); err != nil {
			slog.Error("failed to snapshot config", "error", err)
			os.Exit(1)
		}
		slog.Info("writing telemetry", "dir", output.Dir())
	}

	eng := engine.New(engine.Options{
		Seed:     rngSeed,
		LogStats: *logStats,
		Output:   output,
	})
	defer eng.Close()

	var hub *server.Hub
	if *serveAddr != "" {
		hub = server.NewHub()
		mux := http.NewServeMux()
		mux.Handle("/ws", hub.Handler())
		go func() {
			slog.Info("serving debug feed", "addr", *serveAddr)
			if err := http.ListenAndServe(*serveAddr, mux); err != nil {
				slog.Error("debug server failed", "error", err)
			}
		}()
	}

	slog.Info("starting simulation",
		"seed", rngSeed,
		"agents", eng.Count(),
		"index", cfg.Index.Type,
		"max_ticks", *maxTicks,
	)

	tickInterval := time.Duration(float64(time.Second) * cfg.Physics.DT)
	var ticker *time.Ticker
	if *realtime {
		ticker = time.NewTicker(tickInterval)
		defer ticker.Stop()
	}

	for {
		// Apply queued behavior tweaks at the tick boundary.
		if hub != nil {
			drainControls(hub, eng)
		}

		eng.Step(cfg.Derived.DT32)

		if hub != nil && *frameEvery > 0 && eng.Tick()%uint64(*frameEvery) == 0 {
			hub.BroadcastFrame(server.FrameFrom(eng.Tick(), eng.Agents()))
		}

		if *maxTicks > 0 && int(eng.Tick()) >= *maxTicks {
			slog.Info("max ticks reached", "tick", eng.Tick())
			return
		}

		if ticker != nil {
			<-ticker.C
		}
	}
}

// drainControls applies every queued client update without blocking.
func drainControls(hub *server.Hub, eng *engine.Engine) {
	for {
		select {
		case update := <-hub.Controls():
			update.Apply(eng)
		default:
			return
		}
	}
}
