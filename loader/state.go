package loader

// State is a step of a loader session.
type State int

// Session states, in the order a successful run visits them. StateFailed is
// reachable from every non-terminal state.
const (
	StateIdle State = iota
	StateAwaitingDevice
	StateClaimed
	StateModuleLoaded
	StatePreparing
	StateBooting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDevice:
		return "awaiting-device"
	case StateClaimed:
		return "claimed"
	case StateModuleLoaded:
		return "module-loaded"
	case StatePreparing:
		return "preparing"
	case StateBooting:
		return "booting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
