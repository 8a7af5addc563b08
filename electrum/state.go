package electrum

// State of a Client's connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Handshaking
	Ready
	ReconnectPending
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case ReconnectPending:
		return "reconnect pending"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// transitions lists the states reachable from each state. Closed has no
// outgoing transitions.
var transitions = map[State][]State{
	Disconnected:     {Connecting, ReconnectPending, Closed},
	Connecting:       {Handshaking, Disconnected, Closed},
	Handshaking:      {Ready, Disconnected, Closed},
	Ready:            {Disconnected, Closed},
	ReconnectPending: {Connecting, Disconnected, Closed},
	Closed:           {},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
