package realtime

// State is the lifecycle state of a Handle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Retryable reports whether a handle in state s ended abnormally and counts
// toward the reconnect budget.
func (s State) Retryable() bool {
	return s == StateDisconnected || s == StateFailed
}
