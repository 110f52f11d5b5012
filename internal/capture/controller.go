// Package capture implements the still-photo acquisition pipeline for the
// glasses camera: a single worker goroutine that owns all hardware
// interaction, a retry policy around transient device contention, and the
// conversion that turns a raw sensor frame into a transport-ready JPEG.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/zero2005x/glasscam/internal/camera"
)

// Capture defaults.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720

	// exposureTargetEV is the deliberate brightness bias applied to still
	// captures; the target hardware's auto-exposure tends to underexpose.
	exposureTargetEV = 1.5
)

// ErrNotInitialized is returned when CapturePhoto is called before a
// successful Initialize.
var ErrNotInitialized = errors.New("camera not initialized")

// ErrReleased is returned when the controller has been released.
var ErrReleased = errors.New("capture controller released")

// Timing holds the delay and timeout budgets of the retry policy.
type Timing struct {
	// InitialDelay is waited before the first attempt, giving a competing
	// holder a chance to release the device opportunistically.
	InitialDelay time.Duration
	// RetryBase scales the backoff: the delay before attempt n+1 is
	// RetryBase × n.
	RetryBase time.Duration
	// MaxAttempts is the retry ceiling.
	MaxAttempts int
	// OpenTimeout bounds a device open; exceeding it is an open failure.
	OpenTimeout time.Duration
	// Warmup is the preview burst run before the still capture so autofocus
	// and auto-exposure can converge. Warm-up frames are discarded.
	Warmup time.Duration
	// CaptureTimeout bounds the wait for the still frame.
	CaptureTimeout time.Duration
}

// DefaultTiming returns the stock timing budgets.
func DefaultTiming() Timing {
	return Timing{
		InitialDelay:   500 * time.Millisecond,
		RetryBase:      500 * time.Millisecond,
		MaxAttempts:    5,
		OpenTimeout:    5 * time.Second,
		Warmup:         1500 * time.Millisecond,
		CaptureTimeout: 10 * time.Second,
	}
}

// Config holds controller configuration.
type Config struct {
	Provider camera.Provider
	// Width and Height size the capture session. Defaults 1280x720.
	Width  int
	Height int
	// JPEGQuality is the base encode quality. Default 85.
	JPEGQuality int
	Timing      Timing
}

// Result is a completed capture.
type Result struct {
	Data     []byte
	Width    int
	Height   int
	Attempts int
	Duration time.Duration
}

// Controller acquires single still images from the selected camera device.
// All hardware interaction runs on one dedicated worker goroutine; the public
// entry points hand off to it and block the caller until a terminal state.
// After an error the controller stays usable: the next CapturePhoto re-enters
// the capture flow without re-initialization.
type Controller struct {
	cfg    Config
	jobs   chan job
	quit   chan struct{}
	device camera.DeviceInfo

	// state fields are only written by the worker goroutine.
	stateCh  chan stateReq
	listener func(Transition)
}

type jobKind int

const (
	jobInit jobKind = iota
	jobCapture
)

type job struct {
	kind   jobKind
	ctx    context.Context
	result chan jobResult
}

type jobResult struct {
	res *Result
	err error
}

type stateReq struct {
	reply chan State
}

// New creates a controller and starts its worker goroutine.
func New(cfg Config) *Controller {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}
	if cfg.Timing.MaxAttempts <= 0 {
		cfg.Timing = DefaultTiming()
	}

	c := &Controller{
		cfg:     cfg,
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		stateCh: make(chan stateReq),
	}
	go c.run(StateIdle)
	return c
}

// SetListener registers a callback invoked on every state transition. Must be
// called before Initialize; the callback runs on the worker goroutine and
// must not call back into the controller.
func (c *Controller) SetListener(fn func(Transition)) {
	c.listener = fn
}

// run is the worker loop. It owns the controller state and the camera
// hardware; jobs execute strictly in arrival order.
func (c *Controller) run(initial State) {
	state := initial
	initialized := false
	lastErr := ""

	setState := func(s State, tr Transition) {
		state = s
		if c.listener != nil {
			tr.State = s
			c.listener(tr)
		}
	}

	for {
		select {
		case <-c.quit:
			return
		case req := <-c.stateCh:
			req.reply <- state
		case j := <-c.jobs:
			switch j.kind {
			case jobInit:
				setState(StateInitializing, Transition{})
				err := c.doInitialize(j.ctx)
				if err != nil {
					lastErr = err.Error()
					setState(StateError, Transition{Message: lastErr})
				} else {
					initialized = true
					setState(StateReady, Transition{})
				}
				j.result <- jobResult{err: err}

			case jobCapture:
				if !initialized {
					lastErr = ErrNotInitialized.Error()
					setState(StateError, Transition{Message: lastErr})
					j.result <- jobResult{err: ErrNotInitialized}
					continue
				}
				setState(StateCapturing, Transition{})
				res, err := c.doCapture(j.ctx)
				if err != nil {
					lastErr = err.Error()
					setState(StateError, Transition{Message: lastErr})
				} else {
					setState(StateSuccess, Transition{Bytes: len(res.Data)})
				}
				j.result <- jobResult{res: res, err: err}
			}
		}
	}
}

// State returns the current observable state.
func (c *Controller) State() State {
	req := stateReq{reply: make(chan State, 1)}
	select {
	case c.stateCh <- req:
		return <-req.reply
	case <-c.quit:
		return StateIdle
	}
}

// Initialize enumerates devices and selects the capture source. It must
// succeed before CapturePhoto.
func (c *Controller) Initialize(ctx context.Context) error {
	_, err := c.submit(ctx, jobInit)
	return err
}

// CapturePhoto acquires exactly one still image from the selected device,
// retrying around transient hardware contention, and returns it as a
// complete JPEG.
func (c *Controller) CapturePhoto(ctx context.Context) (*Result, error) {
	return c.submit(ctx, jobCapture)
}

// Release stops the worker goroutine. In-flight jobs finish first.
func (c *Controller) Release() {
	close(c.quit)
}

func (c *Controller) submit(ctx context.Context, kind jobKind) (*Result, error) {
	j := job{kind: kind, ctx: ctx, result: make(chan jobResult, 1)}
	select {
	case c.jobs <- j:
	case <-c.quit:
		return nil, ErrReleased
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := <-j.result
	return r.res, r.err
}

func (c *Controller) doInitialize(ctx context.Context) error {
	devices, err := c.cfg.Provider.Devices()
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	selected, err := camera.SelectDevice(devices)
	if err != nil {
		return err
	}
	c.device = selected
	log.Printf("capture: selected device %s (%s) from %d available", selected.ID, selected.Facing, len(devices))
	return nil
}

// doCapture runs the retry loop: an initial grace delay, then up to
// MaxAttempts attempts with linearly increasing backoff between recoverable
// failures. A non-recoverable failure aborts immediately; exhaustion
// surfaces the last error.
func (c *Controller) doCapture(ctx context.Context) (*Result, error) {
	t := c.cfg.Timing
	start := time.Now()

	if err := sleepCtx(ctx, t.InitialDelay); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= t.MaxAttempts; attempt++ {
		data, err := c.attempt(ctx, attempt)
		if err == nil {
			return &Result{
				Data:     data,
				Width:    c.cfg.Width,
				Height:   c.cfg.Height,
				Attempts: attempt,
				Duration: time.Since(start),
			}, nil
		}
		lastErr = err
		log.Printf("capture: attempt %d/%d failed: %v", attempt, t.MaxAttempts, err)

		if !recoverable(err) || ctx.Err() != nil {
			break
		}
		if attempt < t.MaxAttempts {
			if serr := sleepCtx(ctx, backoffDelay(t.RetryBase, attempt)); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, lastErr
}

// backoffDelay is the wait after a failed attempt n; it grows linearly with
// the attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// recoverable reports whether the attempt error is attributable to transient
// contention. Errors without a service code, such as frame conversion
// failures and capture timeouts, stay eligible for retry; a classified
// non-recoverable code aborts the loop.
func recoverable(err error) bool {
	var derr *camera.DeviceError
	if errors.As(err, &derr) {
		return derr.Code.Recoverable()
	}
	var cerr *camera.CaptureError
	if errors.As(err, &cerr) {
		return cerr.Code.Recoverable()
	}
	return true
}

// attempt opens the device, configures a session, runs the warm-up preview
// and captures one still. Device and session are closed on every exit path.
func (c *Controller) attempt(ctx context.Context, attempt int) ([]byte, error) {
	t := c.cfg.Timing

	openCtx, cancel := context.WithTimeout(ctx, t.OpenTimeout)
	dev, err := c.cfg.Provider.Open(openCtx, c.device.ID)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The open outlived its budget, not the whole capture. A hung
			// open usually means the service is wedged by another holder.
			return nil, camera.NewDeviceError(camera.ErrCodeService,
				fmt.Sprintf("device open timed out after %s", t.OpenTimeout))
		}
		return nil, err
	}
	defer dev.Close()

	sess, err := dev.CreateSession(ctx, camera.SessionConfig{Width: c.cfg.Width, Height: c.cfg.Height})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.StartPreview(ctx); err != nil {
		return nil, err
	}

	// Warm-up: discard frames until 3A has had time to converge. Only after
	// the phase flips is a delivered frame treated as the real capture.
	phase := phaseWarmup
	warm := time.NewTimer(t.Warmup)
	defer warm.Stop()
	for phase == phaseWarmup {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f := <-sess.Frames():
			f.Release()
		case cerr := <-sess.Errors():
			return nil, cerr
		case <-warm.C:
			phase = phaseStill
		}
	}

	if err := sess.Capture(c.exposureSettings(dev)); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(t.CaptureTimeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, &camera.CaptureError{
				Code: camera.ErrCodeCaptureFailed,
				Msg:  fmt.Sprintf("no frame within %s", t.CaptureTimeout),
			}
		case cerr := <-sess.Errors():
			if cerr.FrameInFlight {
				// The service reported a capture failure but an image was
				// already captured; keep waiting for the reader to deliver it.
				log.Printf("capture: attempt %d: capture failed with frame in flight, waiting for reader", attempt)
				continue
			}
			return nil, cerr
		case f := <-sess.Frames():
			data, err := EncodeFrame(f, c.cfg.JPEGQuality)
			f.Release()
			return data, err
		}
	}
}

// exposureSettings computes the compensation index targeting the configured
// EV bias, clamped to the device's range. Devices without a published range
// get neutral exposure.
func (c *Controller) exposureSettings(dev camera.Device) camera.CaptureSettings {
	min, max, step, ok := dev.ExposureRange()
	if !ok || step <= 0 {
		return camera.CaptureSettings{}
	}
	comp := int(math.Round(exposureTargetEV / step))
	if comp < min {
		comp = min
	}
	if comp > max {
		comp = max
	}
	return camera.CaptureSettings{ExposureComp: comp, HasExposureComp: true}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
