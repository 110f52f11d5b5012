package camera

import "errors"

// ErrNoDevices is returned when enumeration finds no camera devices.
var ErrNoDevices = errors.New("no camera devices available")

// SelectDevice picks the capture source from the enumerated devices.
// An external-facing sensor wins over back-facing wins over front-facing,
// since on this hardware class the external/AR sensor is the intended
// capture source. Ties keep the earlier device, so selection is
// deterministic for a fixed enumeration order.
func SelectDevice(devices []DeviceInfo) (DeviceInfo, error) {
	if len(devices) == 0 {
		return DeviceInfo{}, ErrNoDevices
	}

	best := devices[0]
	for _, d := range devices[1:] {
		if facingPriority(d.Facing) > facingPriority(best.Facing) {
			best = d
		}
	}
	return best, nil
}

func facingPriority(f Facing) int {
	switch f {
	case FacingExternal:
		return 2
	case FacingBack:
		return 1
	default:
		return 0
	}
}
