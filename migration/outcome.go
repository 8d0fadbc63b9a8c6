package migration

import "time"

// State describes what happened to a single unit during one runner
// invocation. A failed unit re-enters pending on the next invocation;
// retry is the default and there is no attempt ceiling.
type State int

const (
	StatePending State = iota
	StateSkipped
	StateSucceeded
	StateFailed
)

// String returns a string representation for a unit state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSkipped:
		return "skipped"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one unit. Failures carry a
// human-readable reason rather than being raised as errors; the runner
// reserves returned errors for infrastructure faults.
type Outcome struct {
	ID       string
	Name     string
	Required bool
	State    State
	Duration time.Duration
	Reason   string
}

// Summary collects per-unit outcomes for one runner invocation, in
// execution order.
type Summary struct {
	Outcomes []Outcome

	// Halted is true when a required unit failed and the remaining
	// registry entries were not processed.
	Halted bool
}

// OK reports whether every required unit that was processed succeeded.
// Optional-unit failures do not affect the overall result.
func (s Summary) OK() bool {
	for _, o := range s.Outcomes {
		if o.Required && o.State == StateFailed {
			return false
		}
	}
	return !s.Halted
}

// Failed returns the outcomes of units that failed, in order.
func (s Summary) Failed() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.State == StateFailed {
			out = append(out, o)
		}
	}
	return out
}

// Executed returns how many units actually ran (succeeded or failed).
func (s Summary) Executed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.State == StateSucceeded || o.State == StateFailed {
			n++
		}
	}
	return n
}
