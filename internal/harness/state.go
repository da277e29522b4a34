package harness

import "fmt"

// State is the lifecycle position of a harness run.
type State uint32

const (
	StateInit State = iota
	StateReady
	StateStreaming
	StateFinished
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReady:
		return "Ready"
	case StateStreaming:
		return "Streaming"
	case StateFinished:
		return "Finished"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateAborted
}

func validTransition(from, to State) bool {
	switch from {
	case StateInit:
		return to == StateReady || to == StateAborted
	case StateReady:
		return to == StateStreaming || to == StateAborted
	case StateStreaming:
		return to == StateFinished || to == StateAborted
	default:
		return false
	}
}
