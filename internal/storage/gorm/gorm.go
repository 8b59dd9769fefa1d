// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wytcherly/foreman/internal/database"
	"github.com/wytcherly/foreman/internal/logging"
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/internal/model/convert"
	"github.com/wytcherly/foreman/internal/queue"
	"github.com/wytcherly/foreman/pkg/core"

	"gorm.io/gorm"
)

// DefaultWriteInterval is how often queued rows are flushed.
const DefaultWriteInterval = 2 * time.Second

// MaxQueuedRows caps each table's queue while the database is unreachable.
// The oldest rows go first.
const MaxQueuedRows = 50000

// ErrNoSession is returned by EndSession when no session was started.
var ErrNoSession = errors.New("no session in progress")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	WriteInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	PowerChanges      *queue.Queue[model.PowerStateChange]
	SubsystemChanges  *queue.Queue[model.SubsystemChange]
	CapabilityChanges *queue.Queue[model.CapabilityChange]
	Assignments       *queue.Queue[model.Assignment]
	StateTransitions  *queue.Queue[model.StateTransition]
	StatusReports     *queue.Queue[model.StatusReport]
	Decisions         *queue.Queue[model.Decision]
	Performances      *queue.Queue[model.Performance]
}

func newQueues() *queues {
	return &queues{
		PowerChanges:      queue.NewBounded[model.PowerStateChange](MaxQueuedRows),
		SubsystemChanges:  queue.NewBounded[model.SubsystemChange](MaxQueuedRows),
		CapabilityChanges: queue.NewBounded[model.CapabilityChange](MaxQueuedRows),
		Assignments:       queue.NewBounded[model.Assignment](MaxQueuedRows),
		StateTransitions:  queue.NewBounded[model.StateTransition](MaxQueuedRows),
		StatusReports:     queue.NewBounded[model.StatusReport](MaxQueuedRows),
		Decisions:         queue.NewBounded[model.Decision](MaxQueuedRows),
		Performances:      queue.NewBounded[model.Performance](MaxQueuedRows),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	lastWrite atomic.Int64 // microseconds
	writeMu   sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.deps.LogManager.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.LogManager.WriteLog("setupDB", "Database setup complete", "INFO")

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	b.startDBWriters()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done
		b.flush()
	})
	return nil
}

// StartSession inserts the session row; queued rows are stamped with its ID.
func (b *Backend) StartSession(s *core.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.sessionID.Store(uint64(row.ID))
	return nil
}

// SetSessionID points the writer at an existing session row.
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// SessionID returns the row ID of the active session, 0 when none.
func (b *Backend) SessionID() uint {
	return uint(b.sessionID.Load())
}

// EndSession flushes pending rows and stamps the session end time.
func (b *Backend) EndSession() error {
	id := uint(b.sessionID.Load())
	if id == 0 {
		return ErrNoSession
	}
	b.flush()
	b.sessionID.Store(0)

	end := sql.NullTime{Time: time.Now(), Valid: true}
	if err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Update("end_time", end).Error; err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// RecordPowerChange converts and queues a power change.
func (b *Backend) RecordPowerChange(e *core.PowerStateChange) error {
	b.queues.PowerChanges.Push(convert.CoreToPowerStateChange(*e))
	return nil
}

// RecordSubsystemChange converts and queues a subsystem change.
func (b *Backend) RecordSubsystemChange(e *core.SubsystemChange) error {
	b.queues.SubsystemChanges.Push(convert.CoreToSubsystemChange(*e))
	return nil
}

// RecordCapabilityChange converts and queues a capability change.
func (b *Backend) RecordCapabilityChange(e *core.CapabilityChange) error {
	b.queues.CapabilityChanges.Push(convert.CoreToCapabilityChange(*e))
	return nil
}

// RecordAssignment converts and queues an assignment.
func (b *Backend) RecordAssignment(e *core.AssignmentEvent) error {
	b.queues.Assignments.Push(convert.CoreToAssignment(*e))
	return nil
}

// RecordStateTransition converts and queues a loop transition.
func (b *Backend) RecordStateTransition(e *core.StateTransition) error {
	b.queues.StateTransitions.Push(convert.CoreToStateTransition(*e))
	return nil
}

// RecordStatusReport converts and queues a status report.
func (b *Backend) RecordStatusReport(r *core.StatusReport) error {
	b.queues.StatusReports.Push(convert.CoreToStatusReport(*r))
	return nil
}

// RecordDecision converts and queues a vision decision.
func (b *Backend) RecordDecision(r *core.DecisionRecord) error {
	b.queues.Decisions.Push(convert.CoreToDecision(*r))
	return nil
}

// RecordPerformance queues a performance sample.
func (b *Backend) RecordPerformance(p *model.Performance) error {
	cp := *p
	cp.LastWriteDurationMs = float32(b.lastWrite.Load()) / 1000
	b.queues.Performances.Push(cp)
	return nil
}

// QueueLengths reports how many rows wait for the writer.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	n := func(l int) uint16 {
		if l > 0xFFFF {
			return 0xFFFF
		}
		return uint16(l)
	}
	return model.WriteQueueLengths{
		PowerChanges:      n(b.queues.PowerChanges.Len()),
		SubsystemChanges:  n(b.queues.SubsystemChanges.Len()),
		CapabilityChanges: n(b.queues.CapabilityChanges.Len()),
		Assignments:       n(b.queues.Assignments.Len()),
		StateTransitions:  n(b.queues.StateTransitions.Len()),
		StatusReports:     n(b.queues.StatusReports.Len()),
		Decisions:         n(b.queues.Decisions.Len()),
		Performances:      n(b.queues.Performances.Len()),
	}
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) {
	items := q.Drain()
	if len(items) == 0 {
		return
	}

	tx := db.Begin()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Requeue(items)
		return
	}

	tx.Commit()
}

// stamp returns a prepare func that sets the session ID on every row.
func stamp[T any](sessionID uint, set func(*T, uint)) func([]T) {
	return func(items []T) {
		for i := range items {
			set(&items[i], sessionID)
		}
	}
}

// flush drains every queue once. Rows wait while no session is active.
func (b *Backend) flush() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 || b.deps.DB == nil {
		return
	}
	db := b.deps.DB
	log := b.deps.LogManager.WriteLog
	start := time.Now()

	writeQueue(db, b.queues.PowerChanges, "power changes", log,
		stamp(sessionID, func(r *model.PowerStateChange, id uint) { r.SessionID = id }))
	writeQueue(db, b.queues.SubsystemChanges, "subsystem changes", log,
		stamp(sessionID, func(r *model.SubsystemChange, id uint) { r.SessionID = id }))
	writeQueue(db, b.queues.CapabilityChanges, "capability changes", log,
		stamp(sessionID, func(r *model.CapabilityChange, id uint) { r.SessionID = id }))
	writeQueue(db, b.queues.Assignments, "assignments", log,
		stamp(sessionID, func(r *model.Assignment, id uint) { r.SessionID = id }))
	writeQueue(db, b.queues.StateTransitions, "state transitions", log,
		stamp(sessionID, func(r *model.StateTransition, id uint) { r.SessionID = id }))
	writeQueue(db, b.queues.StatusReports, "status reports", log,
		stamp(sessionID, func(r *model.StatusReport, id uint) { r.SessionID = id }))
	writeQueue(db, b.queues.Decisions, "decisions", log,
		stamp(sessionID, func(r *model.Decision, id uint) { r.SessionID = id }))
	writeQueue(db, b.queues.Performances, "performances", log,
		stamp(sessionID, func(r *model.Performance, id uint) { r.SessionID = id }))

	b.lastWrite.Store(time.Since(start).Microseconds())
}

// startDBWriters starts the background goroutine that periodically drains queues into the DB.
func (b *Backend) startDBWriters() {
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.deps.WriteInterval)
		defer ticker.Stop()

		for {
			select {
			case <-b.stopChan:
				return
			case <-ticker.C:
				b.flush()
			}
		}
	}()
}
