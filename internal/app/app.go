// Package app wires the capture pipeline together: controller, transfer
// compressor, photo store, chunk transport and metrics.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zero2005x/glasscam/internal/camera"
	"github.com/zero2005x/glasscam/internal/capture"
	"github.com/zero2005x/glasscam/internal/compress"
	"github.com/zero2005x/glasscam/internal/metrics"
	"github.com/zero2005x/glasscam/internal/store"
	"github.com/zero2005x/glasscam/internal/transfer"
)

// Config holds configuration options for the application.
type Config struct {
	Provider camera.Provider
	Store    *store.Store
	// Sender receives every captured photo as a chunk sequence. Nil disables
	// automatic push.
	Sender transfer.Sender

	Profile   compress.Profile
	Timing    capture.Timing
	Width     int
	Height    int
	Quality   int
	PhotosDir string
	// ChunkSize for pushes through Sender.
	ChunkSize int
	// ThroughputBps is the assumed link rate used for delivery estimates.
	ThroughputBps int

	Metrics *metrics.Metrics
}

// App orchestrates photo capture, compression, persistence and transfer.
type App struct {
	config     Config
	controller *capture.Controller
}

// CaptureResult is the outcome of one RequestCapture call.
type CaptureResult struct {
	Photo store.Photo
	// Data is the compressed payload handed to the transport.
	Data []byte
	// Estimate is the expected delivery time at the assumed link rate.
	// Telemetry only.
	Estimate time.Duration
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Profile.TargetWidth == 0 && config.Profile.TargetHeight == 0 {
		config.Profile = compress.DefaultProfile()
	}
	if config.PhotosDir == "" {
		config.PhotosDir = "photos"
	}

	controller := capture.New(capture.Config{
		Provider:    config.Provider,
		Width:       config.Width,
		Height:      config.Height,
		JPEGQuality: config.Quality,
		Timing:      config.Timing,
	})

	return &App{
		config:     config,
		controller: controller,
	}
}

// OnTransition registers a listener for controller state changes. Call
// before Start.
func (a *App) OnTransition(fn func(capture.Transition)) {
	a.controller.SetListener(fn)
}

// Controller returns the capture controller.
func (a *App) Controller() *capture.Controller {
	return a.controller
}

// Start initializes the camera pipeline and prepares the photos directory.
func (a *App) Start(ctx context.Context) error {
	if err := os.MkdirAll(a.config.PhotosDir, 0755); err != nil {
		return fmt.Errorf("create photos dir: %w", err)
	}
	if err := a.controller.Initialize(ctx); err != nil {
		return err
	}
	log.Println("capture pipeline started")
	return nil
}

// Stop releases the capture pipeline.
func (a *App) Stop() {
	a.controller.Release()
	log.Println("capture pipeline stopped")
}

// RequestCapture acquires one photo, re-targets it to the transfer profile,
// persists the record and hands the payload to the configured transport.
func (a *App) RequestCapture(ctx context.Context) (*CaptureResult, error) {
	m := a.config.Metrics

	res, err := a.controller.CapturePhoto(ctx)
	if m != nil {
		if res != nil {
			m.CaptureAttempts.Add(float64(res.Attempts))
			if res.Attempts > 1 {
				m.CaptureRetries.Add(float64(res.Attempts - 1))
			}
			m.CaptureDuration.Observe(res.Duration.Seconds())
		}
		if err != nil {
			m.CaptureFailures.Inc()
		}
	}
	if err != nil {
		return nil, err
	}

	compressed, err := compress.Compress(res.Data, a.config.Profile)
	if err != nil {
		return nil, fmt.Errorf("compress photo: %w", err)
	}
	if m != nil {
		m.CompressPasses.Observe(float64(compressed.Passes))
	}

	id := uuid.New().String()
	filename := fmt.Sprintf("photo_%s_%s.jpg", time.Now().Format("20060102_150405"), id[:8])
	filePath := filepath.Join(a.config.PhotosDir, filename)
	if err := os.WriteFile(filePath, compressed.Data, 0644); err != nil {
		return nil, fmt.Errorf("write photo: %w", err)
	}

	photo := store.Photo{
		ID:         id,
		Filename:   filename,
		FilePath:   filePath,
		Width:      compressed.Width,
		Height:     compressed.Height,
		SizeBytes:  len(compressed.Data),
		Quality:    compressed.Quality,
		Attempts:   res.Attempts,
		DurationMs: res.Duration.Milliseconds(),
	}
	if a.config.Store != nil {
		if err := a.config.Store.Photos().Create(&photo); err != nil {
			os.Remove(filePath)
			return nil, fmt.Errorf("record photo: %w", err)
		}
	}

	if m != nil {
		m.PhotosTotal.Inc()
		m.PhotoBytes.Add(float64(len(compressed.Data)))
	}

	estimate := transfer.Estimate(len(compressed.Data), a.config.ThroughputBps)

	// Push is best-effort: the photo is already persisted, and the phone can
	// fetch it later if the link is down.
	if a.config.Sender != nil {
		if err := transfer.Send(a.config.Sender, filename, compressed.Data, a.config.ChunkSize); err != nil {
			log.Printf("photo transfer failed: %v", err)
		}
	}

	log.Printf("captured %s: %dx%d, %d bytes, quality %d, %d attempt(s), est. transfer %s",
		filename, compressed.Width, compressed.Height, len(compressed.Data),
		compressed.Quality, res.Attempts, estimate.Round(time.Millisecond))

	return &CaptureResult{Photo: photo, Data: compressed.Data, Estimate: estimate}, nil
}
