package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Outcome scripts how one capture attempt behaves against the fake provider.
// The zero value is a clean attempt: open succeeds, the session delivers the
// still frame.
type Outcome struct {
	// OpenErr fails the device open.
	OpenErr *DeviceError
	// OpenDelay stalls the open, to exercise the open timeout.
	OpenDelay time.Duration
	// SessionErr fails session creation.
	SessionErr *DeviceError
	// PreviewErr fails the preview start.
	PreviewErr *DeviceError
	// CaptureErr is delivered asynchronously after the still request.
	CaptureErr *CaptureError
	// FrameAfterErr delivers the still frame despite CaptureErr, simulating
	// the capture-failed-but-image-in-flight race.
	FrameAfterErr bool
	// NoFrame suppresses still-frame delivery, to exercise the capture timeout.
	NoFrame bool
	// WarmupFrames is the number of preview frames delivered before the still.
	WarmupFrames int
}

// FakeProvider plays back scripted attempt outcomes and counts resource
// open/close traffic, mirroring how the controller sees the camera service.
type FakeProvider struct {
	mu       sync.Mutex
	devices  []DeviceInfo
	script   []Outcome
	next     int
	opens    []time.Time
	releases int
	frames   int

	// Counters observable by tests.
	OpenCount     int
	CloseCount    int
	SessionOpens  int
	SessionCloses int

	// Exposure range reported by opened devices. Zero value reports no range.
	ExposureMin  int
	ExposureMax  int
	ExposureStep float64
	HasExposure  bool

	// LastSettings records the settings of the most recent still request.
	LastSettings CaptureSettings
}

// NewFakeProvider creates a fake provider exposing the given devices.
func NewFakeProvider(devices ...DeviceInfo) *FakeProvider {
	return &FakeProvider{devices: devices}
}

// Script replaces the per-attempt outcome sequence. Attempts beyond the
// script succeed cleanly.
func (p *FakeProvider) Script(outcomes ...Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = outcomes
	p.next = 0
}

// Devices returns the configured device list.
func (p *FakeProvider) Devices() ([]DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]DeviceInfo, len(p.devices))
	copy(out, p.devices)
	return out, nil
}

// Open consumes the next scripted outcome and opens a fake device.
func (p *FakeProvider) Open(ctx context.Context, id string) (Device, error) {
	p.mu.Lock()
	var info DeviceInfo
	found := false
	for _, d := range p.devices {
		if d.ID == id {
			info = d
			found = true
			break
		}
	}
	outcome := Outcome{}
	if p.next < len(p.script) {
		outcome = p.script[p.next]
		p.next++
	}
	p.opens = append(p.opens, time.Now())
	p.mu.Unlock()

	if !found {
		return nil, NewDeviceError(ErrCodeDevice, fmt.Sprintf("no such device %q", id))
	}

	if outcome.OpenDelay > 0 {
		select {
		case <-time.After(outcome.OpenDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if outcome.OpenErr != nil {
		return nil, outcome.OpenErr
	}

	p.mu.Lock()
	p.OpenCount++
	p.mu.Unlock()

	return &fakeDevice{provider: p, info: info, outcome: outcome}, nil
}

// OpenTimes returns the timestamps at which Open was called, in order.
func (p *FakeProvider) OpenTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]time.Time, len(p.opens))
	copy(out, p.opens)
	return out
}

// Attempts returns how many times Open was called, including failed opens.
func (p *FakeProvider) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.opens)
}

// FramesDelivered returns the number of frames handed out across all sessions.
func (p *FakeProvider) FramesDelivered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// FramesReleased returns how many delivered frames have been released.
func (p *FakeProvider) FramesReleased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}

// Balanced reports whether every opened handle has been closed and every
// delivered frame released.
func (p *FakeProvider) Balanced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.OpenCount == p.CloseCount &&
		p.SessionOpens == p.SessionCloses &&
		p.frames == p.releases
}

type fakeDevice struct {
	provider *FakeProvider
	info     DeviceInfo
	outcome  Outcome
	mu       sync.Mutex
	closed   bool
}

func (d *fakeDevice) Info() DeviceInfo { return d.info }

func (d *fakeDevice) ExposureRange() (int, int, float64, bool) {
	p := d.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ExposureMin, p.ExposureMax, p.ExposureStep, p.HasExposure
}

func (d *fakeDevice) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if d.outcome.SessionErr != nil {
		return nil, d.outcome.SessionErr
	}

	d.provider.mu.Lock()
	d.provider.SessionOpens++
	d.provider.mu.Unlock()

	return &fakeSession{
		provider: d.provider,
		outcome:  d.outcome,
		cfg:      cfg,
		frames:   make(chan *RawFrame, 16),
		errs:     make(chan *CaptureError, 1),
	}, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.provider.mu.Lock()
	d.provider.CloseCount++
	d.provider.mu.Unlock()
	return nil
}

type fakeSession struct {
	provider *FakeProvider
	outcome  Outcome
	cfg      SessionConfig
	frames   chan *RawFrame
	errs     chan *CaptureError
	mu       sync.Mutex
	closed   bool
}

func (s *fakeSession) StartPreview(ctx context.Context) error {
	if s.outcome.PreviewErr != nil {
		return s.outcome.PreviewErr
	}
	for i := 0; i < s.outcome.WarmupFrames; i++ {
		s.deliver()
	}
	return nil
}

func (s *fakeSession) Capture(settings CaptureSettings) error {
	s.provider.mu.Lock()
	s.provider.LastSettings = settings
	s.provider.mu.Unlock()

	if s.outcome.CaptureErr != nil {
		s.errs <- s.outcome.CaptureErr
		if s.outcome.FrameAfterErr {
			s.deliver()
		}
		return nil
	}
	if !s.outcome.NoFrame {
		s.deliver()
	}
	return nil
}

func (s *fakeSession) deliver() {
	w, h := s.cfg.Width, s.cfg.Height
	if w <= 0 || h <= 0 {
		w, h = 64, 48
	}
	frame := NewTestFrame(w, h, func() {
		s.provider.mu.Lock()
		s.provider.releases++
		s.provider.mu.Unlock()
	})

	s.provider.mu.Lock()
	s.provider.frames++
	s.provider.mu.Unlock()

	select {
	case s.frames <- frame:
	default:
		frame.Release()
	}
}

func (s *fakeSession) Frames() <-chan *RawFrame     { return s.frames }
func (s *fakeSession) Errors() <-chan *CaptureError { return s.errs }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.provider.mu.Lock()
	s.provider.SessionCloses++
	s.provider.mu.Unlock()
	return nil
}

// NewTestFrame builds a valid planar 4:2:0 frame filled with a gradient,
// with tight strides. The release hook may be nil.
func NewTestFrame(width, height int, release func()) *RawFrame {
	cw, ch := (width+1)/2, (height+1)/2

	luma := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			luma[y*width+x] = byte((x + y) % 256)
		}
	}
	cb := make([]byte, cw*ch)
	cr := make([]byte, cw*ch)
	for i := range cb {
		cb[i] = 128
		cr[i] = 128
	}

	return NewRawFrame(width, height, [3]Plane{
		{Data: luma, RowStride: width, PixelStride: 1},
		{Data: cb, RowStride: cw, PixelStride: 1},
		{Data: cr, RowStride: cw, PixelStride: 1},
	}, release)
}
