package domain

// Status is the order lifecycle state. The numeric values match the
// escrow contract's enum and are part of the stored representation.
type Status int

const (
	StatusPending   Status = 0
	StatusConfirmed Status = 1
	StatusDisputed  Status = 2
	StatusRefunded  Status = 3
	StatusReleased  Status = 4
	StatusCancelled Status = 5
)

var statusNames = map[Status]string{
	StatusPending:   "PENDING",
	StatusConfirmed: "CONFIRMED",
	StatusDisputed:  "DISPUTED",
	StatusRefunded:  "REFUNDED",
	StatusReleased:  "RELEASED",
	StatusCancelled: "CANCELLED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether s is a resting end state. Terminal orders keep
// their record forever but accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRefunded || s == StatusReleased || s == StatusCancelled
}

// allowedTransitions is the single source of truth for legal status moves.
// StatusConfirmed never rests: buyer confirmation collapses straight to
// StatusReleased, the value exists only for wire compatibility.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusReleased, StatusDisputed, StatusRefunded, StatusCancelled},
	StatusConfirmed: {StatusReleased},
	StatusDisputed:  {StatusReleased, StatusRefunded},
	StatusRefunded:  {},
	StatusReleased:  {},
	StatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
