package pipeline

import "fmt"

// State is the pipeline's lifecycle state. Transitions move strictly
// forward; Failed is terminal and reachable from any active state.
type State string

const (
	StateInit      State = "init"
	StateProbing   State = "probing"
	StateSchema    State = "schema"
	StateLoading   State = "loading"
	StateVerifying State = "verifying"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// validTransitions maps each state to the states it may move to.
var validTransitions = map[State][]State{
	StateInit:      {StateProbing, StateFailed},
	StateProbing:   {StateSchema, StateFailed},
	StateSchema:    {StateLoading, StateFailed},
	StateLoading:   {StateVerifying, StateDone, StateFailed},
	StateVerifying: {StateDone, StateFailed},
	StateDone:      {},
	StateFailed:    {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the pipeline to the next state, panicking on an illegal
// move. Transitions are driven only by Run's fixed sequence, so an illegal
// move is a programming error, not an input error.
func (p *Pipeline) transition(to State) {
	if !CanTransition(p.state, to) {
		panic(fmt.Sprintf("illegal pipeline transition %s -> %s", p.state, to))
	}
	p.state = to
}

// fail moves the pipeline to the terminal failed state.
func (p *Pipeline) fail() {
	if p.state != StateDone && p.state != StateFailed {
		p.state = StateFailed
	}
}
