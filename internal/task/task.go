package task

import (
	"sync/atomic"
	"time"

	"wealthtop/internal/scan"
	"wealthtop/internal/wealth"
)

type Kind uint8

const (
	KindAdHoc Kind = iota + 1
	KindLeaderboard
)

func (k Kind) String() string {
	switch k {
	case KindAdHoc:
		return "adhoc"
	case KindLeaderboard:
		return "leaderboard"
	default:
		return "unknown"
	}
}

type State int32

const (
	StateCreated State = iota
	StateScanning
	StateResolving
	StateAssembling
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateScanning:
		return "SCANNING"
	case StateResolving:
		return "RESOLVING"
	case StateAssembling:
		return "ASSEMBLING"
	case StateDone:
		return "DONE"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Result is what a task's callback receives. Exactly one of Record and Err is
// set.
type Result struct {
	TaskID  uint64
	Kind    Kind
	Caller  string
	Entity  string
	Record  *wealth.Record
	Err     error
	Elapsed time.Duration
}

// Callback runs on the world loop when the loop is available.
type Callback func(Result)

// Task is one wealth computation for one entity.
type Task struct {
	ID        uint64
	Entity    string
	Caller    string
	Kind      Kind
	StartedAt time.Time

	token    scan.Token
	done     Callback
	state    atomic.Int32
	finished atomic.Bool
}

func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) setState(s State) { t.state.Store(int32(s)) }

// gathered holds the scan phase output of one task. Each field is written by
// exactly one goroutine of the phase.
type gathered struct {
	balance  float64
	external []wealth.Category
}
