package permit

import "strings"

// State is the permit lifecycle state derived from the backend's free-form
// status label. Unrecognized labels map to StateUnknown and are surfaced to
// the caller rather than silently defaulted.
type State int

const (
	StateUnknown State = iota
	StateDraft
	StateOpen
	StateApproved
	StateExtended
	StateExpired
	StateHold
	StateClosed
	StateRejected
)

var stateNames = map[State]string{
	StateUnknown:  "unknown",
	StateDraft:    "draft",
	StateOpen:     "open",
	StateApproved: "approved",
	StateExtended: "extended",
	StateExpired:  "expired",
	StateHold:     "hold",
	StateClosed:   "closed",
	StateRejected: "rejected",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseState maps a status label to a State, case-insensitively.
func ParseState(label string) State {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "draft":
		return StateDraft
	case "open":
		return StateOpen
	case "approved":
		return StateApproved
	case "extended":
		return StateExtended
	case "expired":
		return StateExpired
	case "hold", "on hold":
		return StateHold
	case "closed", "completed":
		return StateClosed
	case "rejected":
		return StateRejected
	default:
		return StateUnknown
	}
}
