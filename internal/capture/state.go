package capture

// State is the externally observable controller state. Exactly one state
// holds at any time.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateCapturing
	StateSuccess
	StateError
)

var stateNames = [...]string{"idle", "initializing", "ready", "capturing", "success", "error"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Transition is a state change pushed to the registered listener. Message is
// the failure text for StateError; Bytes is the payload size for StateSuccess.
type Transition struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
}

// capturePhase distinguishes warm-up preview frames from the real still
// inside one attempt. It replaces a mutable "ready" flag shared with the
// frame callback.
type capturePhase int

const (
	phaseWarmup capturePhase = iota
	phaseStill
)
