// Package camera provides the hardware abstraction for the glasses camera:
// device enumeration with facing metadata, the open/configure/capture
// operations a capture attempt drives, and the planar frame layout a session
// delivers.
package camera

import (
	"context"
	"fmt"
	"sync"
)

// Facing identifies which way a camera device points.
type Facing int

const (
	FacingFront Facing = iota
	FacingBack
	FacingExternal
)

var facingNames = [...]string{"front", "back", "external"}

func (f Facing) String() string {
	if int(f) < len(facingNames) {
		return facingNames[f]
	}
	return "unknown"
}

// DeviceInfo describes an enumerated camera device.
type DeviceInfo struct {
	ID     string
	Facing Facing
}

// ErrorCode classifies device and session failures the way the underlying
// camera service reports them.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	// ErrCodeInUse means another process currently holds the device.
	ErrCodeInUse
	// ErrCodeMaxInUse means the service's open-device limit is reached.
	ErrCodeMaxInUse
	// ErrCodeDisabled means the device is disabled by policy.
	ErrCodeDisabled
	// ErrCodeDevice is a generic device fault reported by the service.
	ErrCodeDevice
	// ErrCodeService is a fault in the camera service itself.
	ErrCodeService
	// ErrCodeCaptureFailed means a still-capture request did not complete.
	ErrCodeCaptureFailed
)

var errCodeNames = map[ErrorCode]string{
	ErrCodeUnknown:       "unknown",
	ErrCodeInUse:         "camera in use",
	ErrCodeMaxInUse:      "max cameras in use",
	ErrCodeDisabled:      "camera disabled",
	ErrCodeDevice:        "device error",
	ErrCodeService:       "service error",
	ErrCodeCaptureFailed: "capture failed",
}

func (c ErrorCode) String() string {
	if name, ok := errCodeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Recoverable reports whether a failure with this code is worth retrying.
// In-use, max-in-use, device, service and capture failures are attributed to
// transient contention with a co-resident holder of the sensor, which may
// release it shortly. A policy-disabled device does not come back by waiting.
func (c ErrorCode) Recoverable() bool {
	switch c {
	case ErrCodeInUse, ErrCodeMaxInUse, ErrCodeDevice, ErrCodeService, ErrCodeCaptureFailed:
		return true
	}
	return false
}

// DeviceError is a classified failure from a device open or session operation.
type DeviceError struct {
	Code ErrorCode
	Msg  string
}

func (e *DeviceError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	}
	return e.Code.String()
}

// NewDeviceError creates a DeviceError with the given code and message.
func NewDeviceError(code ErrorCode, msg string) *DeviceError {
	return &DeviceError{Code: code, Msg: msg}
}

// CaptureError signals an asynchronous still-capture failure. FrameInFlight
// is set when the service reported that an image was captured before the
// failure; the frame may still arrive on the session's frame channel.
type CaptureError struct {
	Code          ErrorCode
	Msg           string
	FrameInFlight bool
}

func (e *CaptureError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	}
	return e.Code.String()
}

// Plane is one plane of a planar frame. PixelStride is the distance in bytes
// between samples of the same row; RowStride between rows.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// RawFrame is a planar luma/two-chroma frame borrowed from the session.
// Planes are ordered luma, chroma-blue, chroma-red. The consumer must call
// Release exactly once, whether or not the frame was used.
type RawFrame struct {
	Width  int
	Height int
	Planes [3]Plane

	releaseOnce sync.Once
	release     func()
}

// NewRawFrame wraps plane data into a frame with the given release hook.
// A nil release hook is allowed.
func NewRawFrame(width, height int, planes [3]Plane, release func()) *RawFrame {
	return &RawFrame{Width: width, Height: height, Planes: planes, release: release}
}

// Release returns the frame's buffers to the session. Safe to call once;
// further calls are no-ops.
func (f *RawFrame) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// SessionConfig sizes the single capture surface of a session.
type SessionConfig struct {
	Width  int
	Height int
}

// CaptureSettings are per-request still-capture parameters.
type CaptureSettings struct {
	// ExposureComp is the exposure-compensation index to apply.
	// Only meaningful when HasExposureComp is set; otherwise the device's
	// neutral exposure is used.
	ExposureComp    int
	HasExposureComp bool
}

// Session is a configured single-surface capture session. Frames delivered
// during preview and after a still request arrive on the same channel;
// asynchronous failures arrive on Errors.
type Session interface {
	// StartPreview begins a repeating preview with continuous autofocus and
	// auto-exposure, letting 3A converge before a still capture.
	StartPreview(ctx context.Context) error

	// Capture issues exactly one still-capture request. Completion is
	// signaled by a frame on Frames or a CaptureError on Errors.
	Capture(settings CaptureSettings) error

	Frames() <-chan *RawFrame
	Errors() <-chan *CaptureError

	Close() error
}

// Device is an exclusively-owned open camera device.
type Device interface {
	Info() DeviceInfo

	// ExposureRange reports the device's exposure-compensation range and the
	// EV value of one compensation step. ok is false when the device does not
	// publish a range, in which case compensation must be skipped.
	ExposureRange() (min, max int, stepEV float64, ok bool)

	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)

	Close() error
}

// Provider enumerates camera devices and opens them.
type Provider interface {
	Devices() ([]DeviceInfo, error)

	// Open acquires exclusive ownership of the device. It honors ctx: an
	// open that outlives the context deadline fails rather than hangs.
	Open(ctx context.Context, id string) (Device, error)
}
