// pkg/core/events.go
package core

import (
	"fmt"
	"time"
)

// Session is one recording run of the extension.
type Session struct {
	ID               string
	Name             string
	StartTime        time.Time
	ExtensionVersion string
}

// PowerStateChange is emitted when an android's power crosses a bracket.
type PowerStateChange struct {
	AndroidID  string
	Time       time.Time
	Old        PowerState
	New        PowerState
	PowerLevel float64
}

// SubsystemChange is emitted when a subsystem status changes.
type SubsystemChange struct {
	AndroidID string
	Time      time.Time
	Subsystem Subsystem
	Old       SubsystemStatus
	New       SubsystemStatus
}

// CapabilityChange is emitted when the active capability set changes.
type CapabilityChange struct {
	AndroidID    string
	Time         time.Time
	Capabilities []Capability
	Readiness    Readiness
}

// AssignmentEvent records a worker being sent to a site.
type AssignmentEvent struct {
	ForemanID string
	Time      time.Time
	WorkerID  string
	SiteID    string
	TaskType  TaskType
	Distance  float64
	Location  Position3D
}

// StateTransition records a dispatch loop moving between states.
type StateTransition struct {
	ForemanID string
	Time      time.Time
	From      string
	To        string
	Result    string
}

// StatusReport is the worker census produced by the survey.
type StatusReport struct {
	ForemanID string
	Time      time.Time
	Total     int
	Idle      int
	Active    int
	Nearby    int
	Location  Position3D
}

// DecisionRecord is a parsed vision decision together with its context.
type DecisionRecord struct {
	BrainID  string
	Time     time.Time
	Command  string
	Snap     int
	Decision Decision
	Raw      string
}

func (r StatusReport) String() string {
	return fmt.Sprintf("Foreman Report: %d total workers, %d idle, %d active", r.Total, r.Idle, r.Active)
}
