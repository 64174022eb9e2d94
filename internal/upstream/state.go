package upstream

// State is the connector's position in its connection lifecycle.
type State int32

// Connector states. The loop is Disconnected → Connecting →
// SubscriptionPending → Streaming, returning to Disconnected on any
// failure. There is no terminal state under normal operation.
const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscriptionPending
	StateStreaming
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscriptionPending:
		return "subscription_pending"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a read-only snapshot of the connector for observers.
type Status struct {
	State   State  `json:"state"`
	Retries uint64 `json:"retries"`
}
