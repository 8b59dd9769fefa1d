package handlers

import (
	"fmt"
	"sync"

	"github.com/wytcherly/foreman/internal/storage"
	"github.com/wytcherly/foreman/pkg/core"
)

// PointWriter receives time-series points alongside storage.
// *influx.Manager satisfies it.
type PointWriter interface {
	WritePowerChange(c core.PowerStateChange) error
	WriteCapabilityChange(c core.CapabilityChange) error
	WriteStatusReport(r core.StatusReport) error
}

// Recorder fans domain events out to the storage backend and the metrics
// writer. Backend writes happen only while a session is active; metric
// points are always written.
type Recorder struct {
	mu      sync.RWMutex
	backend storage.Backend
	points  PointWriter
	active  bool
	log     func(functionName, data, level string)
}

// NewRecorder creates a recorder. points may be nil.
func NewRecorder(points PointWriter, log func(functionName, data, level string)) *Recorder {
	if log == nil {
		log = func(string, string, string) {}
	}
	return &Recorder{points: points, log: log}
}

// SetBackend sets the storage backend
func (r *Recorder) SetBackend(b storage.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend = b
}

// Backend returns the storage backend, or nil.
func (r *Recorder) Backend() storage.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backend
}

// SetActive marks whether a session is being recorded.
func (r *Recorder) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

// Active reports whether a session is being recorded.
func (r *Recorder) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Recorder) target() storage.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.active {
		return nil
	}
	return r.backend
}

func (r *Recorder) point(name string, write func(PointWriter) error) {
	if r.points == nil {
		return
	}
	if err := write(r.points); err != nil {
		r.log(name, fmt.Sprintf("failed to write point: %v", err), "WARN")
	}
}

func (r *Recorder) store(name string, write func(storage.Backend) error) error {
	b := r.target()
	if b == nil {
		return nil
	}
	if err := write(b); err != nil {
		r.log(name, fmt.Sprintf("failed to store: %v", err), "ERROR")
		return err
	}
	return nil
}

func (r *Recorder) RecordPowerChange(c *core.PowerStateChange) error {
	r.point("RecordPowerChange", func(p PointWriter) error { return p.WritePowerChange(*c) })
	return r.store("RecordPowerChange", func(b storage.Backend) error { return b.RecordPowerChange(c) })
}

func (r *Recorder) RecordSubsystemChange(c *core.SubsystemChange) error {
	return r.store("RecordSubsystemChange", func(b storage.Backend) error { return b.RecordSubsystemChange(c) })
}

func (r *Recorder) RecordCapabilityChange(c *core.CapabilityChange) error {
	r.point("RecordCapabilityChange", func(p PointWriter) error { return p.WriteCapabilityChange(*c) })
	return r.store("RecordCapabilityChange", func(b storage.Backend) error { return b.RecordCapabilityChange(c) })
}

func (r *Recorder) RecordAssignment(a *core.AssignmentEvent) error {
	return r.store("RecordAssignment", func(b storage.Backend) error { return b.RecordAssignment(a) })
}

func (r *Recorder) RecordStateTransition(t *core.StateTransition) error {
	return r.store("RecordStateTransition", func(b storage.Backend) error { return b.RecordStateTransition(t) })
}

func (r *Recorder) RecordStatusReport(rep *core.StatusReport) error {
	r.point("RecordStatusReport", func(p PointWriter) error { return p.WriteStatusReport(*rep) })
	return r.store("RecordStatusReport", func(b storage.Backend) error { return b.RecordStatusReport(rep) })
}

func (r *Recorder) RecordDecision(d *core.DecisionRecord) error {
	return r.store("RecordDecision", func(b storage.Backend) error { return b.RecordDecision(d) })
}
