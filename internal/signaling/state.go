package signaling

// Role decides who sends the offer.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "unknown"
	}
}

// State is the lifecycle of one session instance:
//
//	Idle -> Negotiating -> Active -> Closed
//
// Idle -> Negotiating happens at most once per instance. Closed can be entered
// from any state.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
