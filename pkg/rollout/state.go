package rollout

import "time"

// State of a rollout attempt.
//
//	Idle -> Tagged -> Pushed -> Applied -> Verifying -> Committed
//	                                                \-> RolledBack -> Failed
//	(any) -> Failed
type State string

const (
	Idle       State = "Idle"
	Tagged     State = "Tagged"
	Pushed     State = "Pushed"
	Applied    State = "Applied"
	Verifying  State = "Verifying"
	Committed  State = "Committed"
	RolledBack State = "RolledBack"
	Failed     State = "Failed"
)

func (s State) String() string {
	return string(s)
}

// Terminal states end attempts.
func (s State) Terminal() bool {
	return s == Committed || s == Failed
}

// Transition is an edge an attempt walked through.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
