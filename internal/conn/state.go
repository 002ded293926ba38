package conn

// State is the device's connectivity mode. Exactly one is active at a
// time and only the state machine's loop mutates it.
type State int

const (
	// StateConnecting means a join attempt is in flight or about to be
	// retried.
	StateConnecting State = iota

	// StateConnected means an address has been acquired on the target
	// network.
	StateConnected

	// StateFallback means retries are exhausted and the device's own
	// broadcast network is up for reconfiguration.
	StateFallback

	// StateProvisioning means no credentials are stored yet; the device
	// booted straight into broadcast mode awaiting first configuration.
	StateProvisioning
)

// String returns the state tag used in status responses.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFallback:
		return "failed_ap_active"
	case StateProvisioning:
		return "ap_active"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of the state machine, recomputed from
// live fields on each query and never persisted.
type Snapshot struct {
	State      State
	Connected  bool
	RetryCount int
	APEnabled  bool

	// Link details, populated only while connected.
	SSID    string
	RSSI    int
	Channel int
	IP      string
}
