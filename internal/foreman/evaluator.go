package foreman

import (
	"time"

	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/pkg/core"
)

// DefaultScanInterval is how often WorkAvailability re-counts the registry.
const DefaultScanInterval = 500 * time.Millisecond

// Availability is the last census taken by WorkAvailability.
type Availability struct {
	IdleWorkerCount       int
	AvailableWorkCount    int
	ActiveAssignmentCount int
}

// WorkAvailability periodically counts idle workers, available sites and
// active assignments. Counts are zero while no pawn is bound.
type WorkAvailability struct {
	reg      registry.Reader
	interval time.Duration
	elapsed  time.Duration
	last     Availability
}

// NewWorkAvailability creates an evaluator scanning every interval.
func NewWorkAvailability(reg registry.Reader, interval time.Duration) *WorkAvailability {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &WorkAvailability{reg: reg, interval: interval}
}

// Start forces an immediate scan and restarts the interval.
func (e *WorkAvailability) Start(pawn Pawn) {
	e.elapsed = 0
	e.Scan(pawn)
}

// Tick advances the interval and rescans when it has elapsed.
func (e *WorkAvailability) Tick(pawn Pawn, delta time.Duration) {
	e.elapsed += delta
	if e.elapsed < e.interval {
		return
	}
	e.elapsed = 0
	e.Scan(pawn)
}

// Scan re-counts immediately.
func (e *WorkAvailability) Scan(pawn Pawn) Availability {
	if pawn == nil {
		e.last = Availability{}
		return e.last
	}
	e.last = Availability{
		IdleWorkerCount:       len(e.reg.Workers(core.WorkerIdle)),
		AvailableWorkCount:    len(e.reg.WorkSites(true)),
		ActiveAssignmentCount: e.reg.ClaimedCount(),
	}
	return e.last
}

// Last returns the most recent census.
func (e *WorkAvailability) Last() Availability {
	return e.last
}

// HasIdleWorkers reports whether the last census found an idle worker.
func HasIdleWorkers(a Availability) bool {
	return a.IdleWorkerCount > 0
}

// HasAvailableWork reports whether the last census found an available site.
func HasAvailableWork(a Availability) bool {
	return a.AvailableWorkCount > 0
}
