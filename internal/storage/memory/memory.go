// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/pkg/core"
)

// ErrNoSession is returned by EndSession when no session was started.
var ErrNoSession = errors.New("no session in progress")

// AndroidRecord groups the condition history of one android
type AndroidRecord struct {
	ID                string
	PowerChanges      []core.PowerStateChange
	SubsystemChanges  []core.SubsystemChange
	CapabilityChanges []core.CapabilityChange
}

// ForemanRecord groups everything one dispatch loop emitted
type ForemanRecord struct {
	ID          string
	Assignments []core.AssignmentEvent
	Transitions []core.StateTransition
	Reports     []core.StatusReport
}

// BrainRecord groups the decisions of one vision brain
type BrainRecord struct {
	ID        string
	Decisions []core.DecisionRecord
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	endTime time.Time

	androids map[string]*AndroidRecord
	foremen  map[string]*ForemanRecord
	brains   map[string]*BrainRecord

	lastExportPath string
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	b := &Backend{cfg: cfg, now: time.Now}
	b.reset()
	return b
}

func (b *Backend) reset() {
	b.androids = make(map[string]*AndroidRecord)
	b.foremen = make(map[string]*ForemanRecord)
	b.brains = make(map[string]*BrainRecord)
	b.endTime = time.Time{}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.reset()
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.endTime = b.now()
	if err := b.exportJSON(); err != nil {
		return err
	}
	b.session = nil
	return nil
}

// GetExportedFilePath returns the path written by the last EndSession.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func (b *Backend) android(id string) *AndroidRecord {
	r, ok := b.androids[id]
	if !ok {
		r = &AndroidRecord{ID: id}
		b.androids[id] = r
	}
	return r
}

func (b *Backend) foreman(id string) *ForemanRecord {
	r, ok := b.foremen[id]
	if !ok {
		r = &ForemanRecord{ID: id}
		b.foremen[id] = r
	}
	return r
}

// RecordPowerChange records a power bracket crossing
func (b *Backend) RecordPowerChange(e *core.PowerStateChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.android(e.AndroidID)
	r.PowerChanges = append(r.PowerChanges, *e)
	return nil
}

// RecordSubsystemChange records a subsystem status change
func (b *Backend) RecordSubsystemChange(e *core.SubsystemChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.android(e.AndroidID)
	r.SubsystemChanges = append(r.SubsystemChanges, *e)
	return nil
}

// RecordCapabilityChange records a new active capability set
func (b *Backend) RecordCapabilityChange(e *core.CapabilityChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.android(e.AndroidID)
	cp := *e
	cp.Capabilities = append([]core.Capability(nil), e.Capabilities...)
	r.CapabilityChanges = append(r.CapabilityChanges, cp)
	return nil
}

// RecordAssignment records a worker dispatch
func (b *Backend) RecordAssignment(e *core.AssignmentEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.foreman(e.ForemanID)
	r.Assignments = append(r.Assignments, *e)
	return nil
}

// RecordStateTransition records a dispatch loop transition
func (b *Backend) RecordStateTransition(e *core.StateTransition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.foreman(e.ForemanID)
	r.Transitions = append(r.Transitions, *e)
	return nil
}

// RecordStatusReport records a worker census
func (b *Backend) RecordStatusReport(rep *core.StatusReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.foreman(rep.ForemanID)
	r.Reports = append(r.Reports, *rep)
	return nil
}

// RecordDecision records a parsed vision decision
func (b *Backend) RecordDecision(rec *core.DecisionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.brains[rec.BrainID]
	if !ok {
		r = &BrainRecord{ID: rec.BrainID}
		b.brains[rec.BrainID] = r
	}
	r.Decisions = append(r.Decisions, *rec)
	return nil
}

// GetForeman returns a copy of the record for one foreman.
func (b *Backend) GetForeman(id string) (ForemanRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.foremen[id]
	if !ok {
		return ForemanRecord{}, false
	}
	return *r, true
}

// GetAndroid returns a copy of the record for one android.
func (b *Backend) GetAndroid(id string) (AndroidRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.androids[id]
	if !ok {
		return AndroidRecord{}, false
	}
	return *r, true
}
