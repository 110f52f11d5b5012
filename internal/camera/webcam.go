package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Webcam capture defaults.
const (
	// DefaultProbeLimit is how many device indexes enumeration probes.
	DefaultProbeLimit = 4
	// webcamPreviewFPS is the preview frame rate of a webcam session.
	webcamPreviewFPS = 15
)

// WebcamProvider exposes locally attached webcams through the camera
// abstraction, backed by GoCV (OpenCV). It is the capture source on desktop
// builds where the glasses HAL is unavailable. Webcams are reported as
// external-facing and publish no exposure-compensation range.
type WebcamProvider struct {
	probeLimit int
}

// NewWebcamProvider creates a provider probing up to DefaultProbeLimit devices.
func NewWebcamProvider() *WebcamProvider {
	return &WebcamProvider{probeLimit: DefaultProbeLimit}
}

// Devices probes device indexes in order and returns those that open.
func (p *WebcamProvider) Devices() ([]DeviceInfo, error) {
	var devices []DeviceInfo
	for i := 0; i < p.probeLimit; i++ {
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		vc.Close()
		devices = append(devices, DeviceInfo{ID: strconv.Itoa(i), Facing: FacingExternal})
	}
	return devices, nil
}

// Open opens the webcam with the given numeric ID.
func (p *WebcamProvider) Open(ctx context.Context, id string) (Device, error) {
	idx, err := strconv.Atoi(id)
	if err != nil {
		return nil, NewDeviceError(ErrCodeDevice, fmt.Sprintf("bad device id %q", id))
	}

	type openResult struct {
		vc  *gocv.VideoCapture
		err error
	}
	done := make(chan openResult, 1)
	go func() {
		vc, err := gocv.OpenVideoCapture(idx)
		done <- openResult{vc, err}
	}()

	select {
	case <-ctx.Done():
		// The open finishes in the background; close the handle when it does.
		go func() {
			if r := <-done; r.err == nil {
				r.vc.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, NewDeviceError(ErrCodeInUse, r.err.Error())
		}
		return &webcamDevice{info: DeviceInfo{ID: id, Facing: FacingExternal}, vc: r.vc}, nil
	}
}

type webcamDevice struct {
	info   DeviceInfo
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	closed bool
}

func (d *webcamDevice) Info() DeviceInfo { return d.info }

// ExposureRange reports no range: V4L2 exposure controls are not uniformly
// available, so compensation is skipped on webcams.
func (d *webcamDevice) ExposureRange() (int, int, float64, bool) {
	return 0, 0, 0, false
}

func (d *webcamDevice) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, NewDeviceError(ErrCodeDevice, "device is closed")
	}

	d.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	d.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	d.vc.Set(gocv.VideoCaptureFPS, float64(webcamPreviewFPS))

	return &webcamSession{
		dev:     d,
		frames:  make(chan *RawFrame, 1),
		errs:    make(chan *CaptureError, 1),
		stop:    make(chan struct{}),
		capture: make(chan struct{}, 1),
	}, nil
}

func (d *webcamDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.vc.Close()
}

// webcamSession reads frames on a dedicated goroutine. Preview frames are
// delivered with a drop-when-full policy; after a still request every read
// frame is delivered until one is consumed.
type webcamSession struct {
	dev     *webcamDevice
	frames  chan *RawFrame
	errs    chan *CaptureError
	stop    chan struct{}
	capture chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *webcamSession) StartPreview(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	go s.readLoop()
	return nil
}

func (s *webcamSession) readLoop() {
	interval := time.Second / webcamPreviewFPS
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	still := false
	for {
		select {
		case <-s.stop:
			return
		case <-s.capture:
			still = true
		case <-ticker.C:
			frame, err := s.readFrame()
			if err != nil {
				if still {
					s.pushErr(&CaptureError{Code: ErrCodeCaptureFailed, Msg: err.Error()})
					still = false
				}
				continue
			}
			if still {
				// Block until the still frame is taken.
				select {
				case s.frames <- frame:
					still = false
				case <-s.stop:
					frame.Release()
					return
				}
				continue
			}
			select {
			case s.frames <- frame:
			default:
				frame.Release()
			}
		}
	}
}

func (s *webcamSession) readFrame() (*RawFrame, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.closed {
		return nil, fmt.Errorf("device is closed")
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := s.dev.vc.Read(&mat); !ok {
		return nil, fmt.Errorf("failed to read frame from webcam")
	}
	if mat.Empty() {
		return nil, fmt.Errorf("webcam frame is empty")
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert webcam frame: %w", err)
	}
	return FrameFromImage(img), nil
}

func (s *webcamSession) Capture(settings CaptureSettings) error {
	select {
	case s.capture <- struct{}{}:
	default:
	}
	return nil
}

func (s *webcamSession) pushErr(e *CaptureError) {
	select {
	case s.errs <- e:
	default:
	}
}

func (s *webcamSession) Frames() <-chan *RawFrame     { return s.frames }
func (s *webcamSession) Errors() <-chan *CaptureError { return s.errs }

func (s *webcamSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.started {
		close(s.stop)
	}
	// Drain any frame parked in the channel so its buffers are released.
	select {
	case f := <-s.frames:
		f.Release()
	default:
	}
	return nil
}

// FrameFromImage converts a decoded image into a planar 4:2:0 frame with
// tight strides, chroma sampled at even pixel positions.
func FrameFromImage(img image.Image) *RawFrame {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	cw, ch := (w+1)/2, (h+1)/2

	luma := make([]byte, w*h)
	cb := make([]byte, cw*ch)
	cr := make([]byte, cw*ch)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			yy, uu, vv := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			luma[y*w+x] = yy
			if x%2 == 0 && y%2 == 0 {
				ci := (y/2)*cw + x/2
				cb[ci] = uu
				cr[ci] = vv
			}
		}
	}

	return NewRawFrame(w, h, [3]Plane{
		{Data: luma, RowStride: w, PixelStride: 1},
		{Data: cb, RowStride: cw, PixelStride: 1},
		{Data: cr, RowStride: cw, PixelStride: 1},
	}, nil)
}
