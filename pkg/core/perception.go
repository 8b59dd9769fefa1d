// pkg/core/perception.go
package core

import (
	"fmt"
	"strings"
	"time"
)

// PerceivedEntity is one entry of a perception snapshot.
type PerceivedEntity struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Tags          []string      `json:"tags"`
	Distance      float64       `json:"distance"`
	Location      Position3D    `json:"location"`
	Material      string        `json:"material,omitempty"`
	SinceLastSeen time.Duration `json:"sinceLastSeen,omitempty"`
	Visible       bool          `json:"visible"`
}

// Label returns the tag used to identify the entity: the preferred tag when
// present, else the first tag, else the raw name.
func (e PerceivedEntity) Label(preferred string) string {
	if preferred != "" {
		for _, t := range e.Tags {
			if t == preferred {
				return t
			}
		}
	}
	if len(e.Tags) > 0 && e.Tags[0] != "" {
		return e.Tags[0]
	}
	return e.Name
}

// HasTag reports whether the entity carries tag (case-insensitive).
func (e PerceivedEntity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// MoveResult is the immediate outcome of a move request.
type MoveResult uint8

const (
	MoveSucceeded MoveResult = iota
	MoveFailed
	MoveAlreadyAtGoal
)

var moveResultNames = [...]string{"Succeeded", "Failed", "AlreadyAtGoal"}

func (r MoveResult) String() string {
	if int(r) < len(moveResultNames) {
		return moveResultNames[r]
	}
	return fmt.Sprintf("MoveResult(%d)", r)
}

// MoveStatus is the polled navigation status of a pawn.
type MoveStatus uint8

const (
	MoveIdle MoveStatus = iota
	MoveWaiting
	MovePaused
	MoveMoving
)

var moveStatusNames = [...]string{"Idle", "Waiting", "Paused", "Moving"}

func (s MoveStatus) String() string {
	if int(s) < len(moveStatusNames) {
		return moveStatusNames[s]
	}
	return fmt.Sprintf("MoveStatus(%d)", s)
}

// ParseMoveStatus converts a status name (case-insensitive) to a MoveStatus.
func ParseMoveStatus(s string) (MoveStatus, error) {
	for i, name := range moveStatusNames {
		if strings.EqualFold(name, s) {
			return MoveStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown move status %q", s)
}

// BrainState is the vision decision loop state.
type BrainState uint8

const (
	BrainIdle BrainState = iota
	BrainLookingAround
	BrainNavigatingToTarget
	BrainPickingUp
	BrainNavigatingToDestination
	BrainPlacing
	BrainTaskComplete
)

var brainStateNames = [...]string{
	"Idle", "LookingAround", "NavigatingToTarget", "PickingUp",
	"NavigatingToDestination", "Placing", "TaskComplete",
}

func (s BrainState) String() string {
	if int(s) < len(brainStateNames) {
		return brainStateNames[s]
	}
	return fmt.Sprintf("BrainState(%d)", s)
}

// ActionDescriptor is the action part of a vision decision. Values are passed
// through to the command layer unvalidated.
type ActionDescriptor struct {
	Action    string `json:"action"`
	Target    string `json:"target"`
	Direction string `json:"direction"`
	Speed     string `json:"speed"`
}

// Decision is a structured response from the vision model.
type Decision struct {
	Summary     string           `json:"summary"`
	TargetFound bool             `json:"target_found"`
	TargetTag   string           `json:"target_tag"`
	Action      ActionDescriptor `json:"action"`
}
