// Command wallcue-server is the WallCue device process.
// It loads configuration, initialises device identity, connects to the video
// engine, and starts the API and peer-sync transports.
//
// Usage:
//
//	wallcue-server [--config path/to/config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcalder/wallcue/internal/config"
	"github.com/rcalder/wallcue/internal/device"
	"github.com/rcalder/wallcue/internal/dispatch"
	"github.com/rcalder/wallcue/internal/metrics"
	"github.com/rcalder/wallcue/internal/storage"
	"github.com/rcalder/wallcue/internal/store"
	wsync "github.com/rcalder/wallcue/internal/sync"
	transphttp "github.com/rcalder/wallcue/internal/transport/http"
	"github.com/rcalder/wallcue/internal/transport/oscudp"
	"github.com/rcalder/wallcue/internal/transport/peerws"
	"github.com/rcalder/wallcue/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wallcue: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── 2. Set up structured logger ──────────────────────────────────────────
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// ── 3. Initialise device identity ────────────────────────────────────────
	dev, err := device.New(cfg.Node.DataDir, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}
	deviceID := string(dev.ID())

	slog.Info("wallcue starting",
		"device_id", deviceID,
		"host", cfg.Node.Host,
		"port", cfg.Node.Port,
		"data_dir", dev.DataDir(),
		"peers", len(cfg.Sync.Peers),
	)

	// ── 4. Initialise metrics registry ───────────────────────────────────────
	reg := &metrics.Registry{}

	// ── 5. Connect to the video engine ───────────────────────────────────────
	sender := oscudp.New(cfg.OSC.Host, cfg.OSC.Port, logger, reg)
	if err := sender.Connect(); err != nil {
		// The wall may simply be powered off. Start anyway; the operator can
		// reconnect via PUT /settings once it is back.
		slog.Warn("video engine not reachable at startup", "err", err)
	}
	disp := dispatch.New(sender, dispatch.NewRotation(cfg.OSC.Layer, cfg.OSC.StartingClip))

	// ── 6. Open the message journal ──────────────────────────────────────────
	journal, err := storage.Open(cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	// ── 7. Initialise the message store ──────────────────────────────────────
	st := store.New(store.Config{
		Countdown:     config.Duration(cfg.Messages.Countdown, 10*time.Minute),
		Cooldown:      config.Duration(cfg.Messages.DedupCooldown, 30*time.Second),
		SweepInterval: config.Duration(cfg.Messages.SweepInterval, 15*time.Second),
	}, disp, journal, store.WithMetrics(reg))
	if err := st.Restore(); err != nil {
		return fmt.Errorf("restore journal: %w", err)
	}
	st.Start()

	// ── 8. Start peer sync ───────────────────────────────────────────────────
	hub := peerws.NewHub(logger)
	rec := wsync.New(st, disp, hub,
		wsync.Roles{
			WallOwner:         cfg.Sync.WallOwner,
			SettingsAuthority: cfg.Sync.SettingsAuthority,
		},
		deviceID,
		func() types.OSCSettings {
			host, port := sender.Target()
			rot := disp.Rotation()
			return types.OSCSettings{
				Host:         host,
				Port:         port,
				Layer:        rot.Layer(),
				StartingClip: rot.StartingClip(),
				ClearClip:    rot.ClearClip(),
			}
		},
		logger, reg)

	hub.OnPayload = func(data []byte) { _ = rec.HandlePayload(data) }
	hub.OnConnect = func(string) { rec.Hello() }
	for _, peer := range cfg.Sync.Peers {
		hub.Dial(peerws.PeerURL(peer))
	}
	rec.StartHeartbeat(config.Duration(cfg.Sync.HeartbeatInterval, 10*time.Second))

	// ── 9. Start HTTP / WebSocket transport ──────────────────────────────────
	srv := transphttp.New(st, disp, sender, rec, hub, cfg, deviceID, reg)
	addr := fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.Port)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("wallcue ready", "device_id", deviceID, "addr", addr)
		if err := srv.ListenAndServe(addr); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	// ── 10. Graceful shutdown on SIGINT / SIGTERM ────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Give in-flight requests 5 seconds to complete.
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	rec.Close()
	if err := hub.Close(); err != nil {
		slog.Warn("hub close error", "err", err)
	}
	st.Close()
	if err := journal.Close(); err != nil {
		slog.Warn("journal close error", "err", err)
	}
	if err := sender.Close(); err != nil {
		slog.Warn("osc close error", "err", err)
	}

	slog.Info("wallcue stopped")
	return nil
}
