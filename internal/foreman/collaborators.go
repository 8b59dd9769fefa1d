package foreman

import (
	"github.com/wytcherly/foreman/pkg/core"
)

// Pawn is the foreman's body in the world.
type Pawn interface {
	Location() core.Position3D
}

// Commander sends orders to workers. Orders are fire-and-forget: a nil error
// means the order was issued, not that the worker accepted it.
type Commander interface {
	AssignWork(workerID string, site core.WorkSite) error
	MoveWorkerTo(workerID string, location core.Position3D) error
	AbortWorker(workerID string, reason core.AbortReason) error
}

// Presenter plays and stops presentation cues (animations) on the foreman.
type Presenter interface {
	PlayCue(name string)
	StopCue()
}

// Scanner accepts free-text perception requests, such as an environment scan.
type Scanner interface {
	IssueCommand(text string)
}

// PerceptionFeed supplies perception snapshots.
type PerceptionFeed interface {
	CurrentlyPerceived() []core.PerceivedEntity
	KnownPerceived() []core.PerceivedEntity
}

// Recorder persists what the loop does. storage.Backend satisfies it.
type Recorder interface {
	RecordStateTransition(t *core.StateTransition) error
	RecordAssignment(a *core.AssignmentEvent) error
	RecordStatusReport(r *core.StatusReport) error
}

// StaticPawn is a Pawn at a fixed location.
type StaticPawn core.Position3D

func (p StaticPawn) Location() core.Position3D { return core.Position3D(p) }

type nopPresenter struct{}

func (nopPresenter) PlayCue(string) {}
func (nopPresenter) StopCue()       {}

type nopRecorder struct{}

func (nopRecorder) RecordStateTransition(*core.StateTransition) error { return nil }
func (nopRecorder) RecordAssignment(*core.AssignmentEvent) error      { return nil }
func (nopRecorder) RecordStatusReport(*core.StatusReport) error       { return nil }
