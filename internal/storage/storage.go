// internal/storage/storage.go
package storage

import (
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Condition events
	RecordPowerChange(e *core.PowerStateChange) error
	RecordSubsystemChange(e *core.SubsystemChange) error
	RecordCapabilityChange(e *core.CapabilityChange) error

	// Foreman events
	RecordAssignment(e *core.AssignmentEvent) error
	RecordStateTransition(e *core.StateTransition) error
	RecordStatusReport(r *core.StatusReport) error

	// Brain events
	RecordDecision(r *core.DecisionRecord) error
}

// Exporter is an optional interface for backends that write a file when a
// session ends.
type Exporter interface {
	GetExportedFilePath() string
}

// PerformanceRecorder is an optional interface for backends that persist
// extension performance samples.
type PerformanceRecorder interface {
	RecordPerformance(p *model.Performance) error
}

// QueueReporter is an optional interface for backends with pending write
// queues.
type QueueReporter interface {
	QueueLengths() model.WriteQueueLengths
}
