// pkg/core/work.go
package core

import (
	"fmt"
	"strings"
)

// WorkerState is the lifecycle state of a worker as seen by the dispatcher.
type WorkerState uint8

const (
	WorkerIdle WorkerState = iota
	WorkerMovingToTask
	WorkerWorking
	WorkerReturning
	WorkerUnavailable
)

var workerStateNames = [...]string{"Idle", "MovingToTask", "Working", "Returning", "Unavailable"}

func (s WorkerState) String() string {
	if int(s) < len(workerStateNames) {
		return workerStateNames[s]
	}
	return fmt.Sprintf("WorkerState(%d)", s)
}

// ParseWorkerState converts a state name (case-insensitive) to a WorkerState.
func ParseWorkerState(s string) (WorkerState, error) {
	for i, name := range workerStateNames {
		if strings.EqualFold(name, s) {
			return WorkerState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown worker state %q", s)
}

// TaskType is the kind of work a site offers.
type TaskType string

const (
	TaskBuild  TaskType = "Task.Build"
	TaskHaul   TaskType = "Task.Haul"
	TaskPatrol TaskType = "Task.Patrol"
	TaskCut    TaskType = "Task.Cut"
)

// AbortReason explains why a worker was pulled off its task.
type AbortReason uint8

const (
	AbortReassigned AbortReason = iota
	AbortTargetLost
	AbortEmergency
	AbortForemanOrder
)

var abortReasonNames = [...]string{"Reassigned", "TargetLost", "Emergency", "ForemanOrder"}

func (r AbortReason) String() string {
	if int(r) < len(abortReasonNames) {
		return abortReasonNames[r]
	}
	return fmt.Sprintf("AbortReason(%d)", r)
}

// ParseAbortReason converts a reason name (case-insensitive) to an AbortReason.
func ParseAbortReason(s string) (AbortReason, error) {
	for i, name := range abortReasonNames {
		if strings.EqualFold(name, s) {
			return AbortReason(i), nil
		}
	}
	return 0, fmt.Errorf("unknown abort reason %q", s)
}

// WorkEndReason explains why work at a site ended.
type WorkEndReason uint8

const (
	WorkCompleted WorkEndReason = iota
	WorkAborted
	WorkFailed
)

var workEndReasonNames = [...]string{"Completed", "Aborted", "Failed"}

func (r WorkEndReason) String() string {
	if int(r) < len(workEndReasonNames) {
		return workEndReasonNames[r]
	}
	return fmt.Sprintf("WorkEndReason(%d)", r)
}

// ParseWorkEndReason converts a reason name (case-insensitive) to a WorkEndReason.
func ParseWorkEndReason(s string) (WorkEndReason, error) {
	for i, name := range workEndReasonNames {
		if strings.EqualFold(name, s) {
			return WorkEndReason(i), nil
		}
	}
	return 0, fmt.Errorf("unknown work end reason %q", s)
}

// Worker is a commandable unit known to the registry.
type Worker struct {
	ID           string
	Name         string
	Tags         []string
	State        WorkerState
	Capabilities CapabilitySet
	Location     Position3D
}

// HasTag reports whether the worker carries tag.
func (w Worker) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WorkSite is a claimable location offering a task.
type WorkSite struct {
	ID                  string
	Name                string
	Tags                []string
	TaskType            TaskType
	Location            Position3D
	Operational         bool
	ClaimedBy           string
	InteractionDuration float64
}

// Claimed reports whether a worker holds the site.
func (s WorkSite) Claimed() bool {
	return s.ClaimedBy != ""
}

// Available reports whether the site can be offered to a worker.
func (s WorkSite) Available() bool {
	return !s.Claimed() && s.Operational
}

// Assignment pairs a worker with a site, scored by distance from the planner.
type Assignment struct {
	WorkerID string
	SiteID   string
	TaskType TaskType
	Target   Position3D
	Distance float64
}

// PatrolPoint is a waypoint the foreman cycles through when surveying.
type PatrolPoint struct {
	Location Position3D
	Priority int
	Label    string
}
