package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/zero2005x/glasscam/internal/app"
	"github.com/zero2005x/glasscam/internal/camera"
	"github.com/zero2005x/glasscam/internal/capture"
	"github.com/zero2005x/glasscam/internal/compress"
	"github.com/zero2005x/glasscam/internal/config"
	"github.com/zero2005x/glasscam/internal/metrics"
	"github.com/zero2005x/glasscam/internal/server"
	"github.com/zero2005x/glasscam/internal/store"
	"github.com/zero2005x/glasscam/internal/transfer"
)

func main() {
	configPath := flag.String("config", "glasscam.yaml", "path to config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	providerName := flag.String("provider", "", "capture source: webcam or fake (overrides config)")
	flag.Parse()

	fmt.Println("glasscam - glasses photo capture daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *providerName != "" {
		cfg.Camera.Provider = *providerName
	}

	st, err := store.New(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	provider, err := buildProvider(cfg.Camera.Provider)
	if err != nil {
		log.Fatalf("Failed to build capture provider: %v", err)
	}

	var sender transfer.Sender
	if cfg.Transfer.Endpoint != "" {
		ws, err := transfer.DialWS(cfg.Transfer.Endpoint, cfg.Transfer.ChunkSize)
		if err != nil {
			log.Printf("Transfer endpoint unavailable, photos will only be stored locally: %v", err)
		} else {
			defer ws.Close()
			sender = ws
		}
	}

	m := metrics.New()

	application := app.New(app.Config{
		Provider: provider,
		Store:    st,
		Sender:   sender,
		Profile: compress.Profile{
			TargetWidth:  cfg.Compression.TargetWidth,
			TargetHeight: cfg.Compression.TargetHeight,
			Quality:      cfg.Compression.Quality,
			MaxBytes:     cfg.Compression.MaxBytes,
		},
		Timing:        timingFromConfig(cfg.Camera),
		Width:         cfg.Camera.Width,
		Height:        cfg.Camera.Height,
		Quality:       cfg.Camera.Quality,
		PhotosDir:     cfg.Storage.PhotosDir,
		ChunkSize:     cfg.Transfer.ChunkSize,
		ThroughputBps: cfg.Transfer.ThroughputBps,
		Metrics:       m,
	})

	states := server.NewStateHub()
	application.OnTransition(states.Broadcast)

	if err := application.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start capture pipeline: %v", err)
	}
	defer application.Stop()

	srv := server.New(server.Config{
		Capture: application,
		Store:   st,
		States:  states,
		Metrics: m.Handler(),
	})

	log.Printf("Starting server on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// buildProvider picks the capture source named in the config.
func buildProvider(name string) (camera.Provider, error) {
	switch name {
	case "", "webcam":
		return camera.NewWebcamProvider(), nil
	case "fake":
		return camera.NewFakeProvider(camera.DeviceInfo{ID: "0", Facing: camera.FacingExternal}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func timingFromConfig(c config.CameraConfig) capture.Timing {
	t := capture.DefaultTiming()
	if c.InitialDelayMs > 0 {
		t.InitialDelay = time.Duration(c.InitialDelayMs) * time.Millisecond
	}
	if c.RetryBaseMs > 0 {
		t.RetryBase = time.Duration(c.RetryBaseMs) * time.Millisecond
	}
	if c.MaxAttempts > 0 {
		t.MaxAttempts = c.MaxAttempts
	}
	if c.OpenTimeoutMs > 0 {
		t.OpenTimeout = time.Duration(c.OpenTimeoutMs) * time.Millisecond
	}
	if c.WarmupMs > 0 {
		t.Warmup = time.Duration(c.WarmupMs) * time.Millisecond
	}
	if c.CaptureTimeoutMs > 0 {
		t.CaptureTimeout = time.Duration(c.CaptureTimeoutMs) * time.Millisecond
	}
	return t
}
