package foreman

import (
	"time"

	"github.com/wytcherly/foreman/pkg/core"
)

// RunStatus is the result of entering or ticking a task.
type RunStatus uint8

const (
	Running RunStatus = iota
	Succeeded
	Failed
)

func (s RunStatus) String() string {
	switch s {
	case Running:
		return "Running"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	}
	return "Unknown"
}

// ExitResult tells a task why it is being exited.
type ExitResult uint8

const (
	ExitSucceeded ExitResult = iota
	ExitFailed
	ExitAborted
)

func (r ExitResult) String() string {
	switch r {
	case ExitSucceeded:
		return "Succeeded"
	case ExitFailed:
		return "Failed"
	case ExitAborted:
		return "Aborted"
	}
	return "Unknown"
}

func exitResultFor(s RunStatus) ExitResult {
	if s == Succeeded {
		return ExitSucceeded
	}
	return ExitFailed
}

// Blackboard is the state shared by the tasks of one loop.
type Blackboard struct {
	// Pawn is nil while no foreman pawn is bound.
	Pawn Pawn

	selection    core.Assignment
	hasSelection bool
}

// SetSelection stores the pair chosen by Plan for Assign.
func (b *Blackboard) SetSelection(a core.Assignment) {
	b.selection = a
	b.hasSelection = true
}

// Selection returns the current pair, if any.
func (b *Blackboard) Selection() (core.Assignment, bool) {
	return b.selection, b.hasSelection
}

// ClearSelection forgets the current pair.
func (b *Blackboard) ClearSelection() {
	b.selection = core.Assignment{}
	b.hasSelection = false
}

// Task is one state of the dispatch loop.
// Exit is called exactly once for every Enter, on every exit path.
type Task interface {
	Name() string
	Enter(bb *Blackboard) RunStatus
	Tick(bb *Blackboard, delta time.Duration) RunStatus
	Exit(bb *Blackboard, result ExitResult)
}
