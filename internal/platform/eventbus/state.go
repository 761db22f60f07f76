package eventbus

// State is the lifecycle state of one managed broker connection. Each of the
// two connections (publisher, subscriber) owns an independent state machine:
//
//	Disconnected -> Connecting -> Ready
//	Connecting   -> Reconnecting -> Connecting   (attempt failed, retries remain)
//	Ready        -> Closed -> Reconnecting       (network drop)
//	any          -> Ended                        (retries exhausted, terminal)
//	any          -> Closed                       (explicit close, terminal)
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateReconnecting
	StateClosed
	// StateEnded means the reconnect policy exhausted its attempt cap. No
	// further automatic recovery happens; the bus must be recreated.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
