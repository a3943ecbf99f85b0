package sampling

// State is the lifecycle of a Loop. A loop runs once.
type State int

const (
	Idle State = iota
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Reason records why a loop stopped.
type Reason int

const (
	TargetExited Reason = iota
	BudgetExceeded
	Cancelled
)

func (r Reason) String() string {
	switch r {
	case TargetExited:
		return "target_exited"
	case BudgetExceeded:
		return "budget_exceeded"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
