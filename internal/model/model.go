package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Info{},
	&Session{},
	&PowerStateChange{},
	&SubsystemChange{},
	&CapabilityChange{},
	&Assignment{},
	&StateTransition{},
	&StatusReport{},
	&Decision{},
	&Performance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Info describes the installation that owns the database
type Info struct {
	gorm.Model
	Name          string `json:"name" gorm:"size:127"`
	Description   string `json:"description" gorm:"size:255"`
	SchemaVersion uint   `json:"schemaVersion"`
}

func (*Info) TableName() string {
	return "foreman_infos"
}

// Performance is a periodic sample of extension queue pressure
type Performance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_performance_time"`
	SessionID           uint              `json:"sessionId" gorm:"index:idx_performance_session_id"`
	Session             Session           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	BufferLengths       BufferLengths     `json:"bufferLengths" gorm:"embedded;embeddedPrefix:buffer_"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LoopState           string            `json:"loopState" gorm:"size:32"`
	IdleWorkers         uint16            `json:"idleWorkers"`
	ActiveWorkers       uint16            `json:"activeWorkers"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*Performance) TableName() string {
	return "performances"
}

// BufferLengths counts commands waiting in the dispatcher's buffered queues
type BufferLengths struct {
	Perception uint16 `json:"perception"`
	CogmapSave uint16 `json:"cogmapSave"`
	Other      uint16 `json:"other"`
}

// WriteQueueLengths counts rows waiting for the DB writer
type WriteQueueLengths struct {
	PowerChanges      uint16 `json:"powerChanges"`
	SubsystemChanges  uint16 `json:"subsystemChanges"`
	CapabilityChanges uint16 `json:"capabilityChanges"`
	Assignments       uint16 `json:"assignments"`
	StateTransitions  uint16 `json:"stateTransitions"`
	StatusReports     uint16 `json:"statusReports"`
	Decisions         uint16 `json:"decisions"`
	Performances      uint16 `json:"performances"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one recording run between :SESSION:START: and :SESSION:END:
type Session struct {
	gorm.Model
	UUID             string       `json:"uuid" gorm:"size:36;uniqueIndex"`
	Name             string       `json:"name" gorm:"size:200"`
	StartTime        time.Time    `json:"startTime" gorm:"index:idx_session_start"`
	EndTime          sql.NullTime `json:"endTime"`
	ExtensionVersion string       `json:"extensionVersion" gorm:"size:64"`

	PowerStateChanges []PowerStateChange
	SubsystemChanges  []SubsystemChange
	CapabilityChanges []CapabilityChange
	Assignments       []Assignment
	StateTransitions  []StateTransition
	StatusReports     []StatusReport
	Decisions         []Decision
}

func (*Session) TableName() string {
	return "sessions"
}

// PowerStateChange is a power bracket crossing of one android
type PowerStateChange struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time"`
	SessionID  uint      `json:"sessionId" gorm:"index:idx_powerchange_session_id"`
	Session    Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	AndroidID  string    `json:"androidId" gorm:"size:64;index:idx_powerchange_android_id"`
	OldState   string    `json:"oldState" gorm:"size:16"`
	NewState   string    `json:"newState" gorm:"size:16"`
	PowerLevel float32   `json:"powerLevel"`
}

func (*PowerStateChange) TableName() string {
	return "power_state_changes"
}

// SubsystemChange is a status change of one subsystem
type SubsystemChange struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_subsystemchange_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	AndroidID string    `json:"androidId" gorm:"size:64;index:idx_subsystemchange_android_id"`
	Subsystem string    `json:"subsystem" gorm:"size:32"`
	OldStatus string    `json:"oldStatus" gorm:"size:16"`
	NewStatus string    `json:"newStatus" gorm:"size:16"`
}

func (*SubsystemChange) TableName() string {
	return "subsystem_changes"
}

// CapabilityChange is a new active capability set with the readiness it implies
type CapabilityChange struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time      `json:"time"`
	SessionID    uint           `json:"sessionId" gorm:"index:idx_capabilitychange_session_id"`
	Session      Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	AndroidID    string         `json:"androidId" gorm:"size:64;index:idx_capabilitychange_android_id"`
	Capabilities datatypes.JSON `json:"capabilities" gorm:"default:'[]'"`
	Readiness    string         `json:"readiness" gorm:"size:32"`
}

func (*CapabilityChange) TableName() string {
	return "capability_changes"
}

// Assignment is a worker dispatched to a work site
type Assignment struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_assignment_session_id"`
	Session   Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	ForemanID string     `json:"foremanId" gorm:"size:64"`
	WorkerID  string     `json:"workerId" gorm:"size:64;index:idx_assignment_worker_id"`
	SiteID    string     `json:"siteId" gorm:"size:64"`
	TaskType  string     `json:"taskType" gorm:"size:32"`
	Distance  float32    `json:"distance"`
	Location  geom.Point `json:"location"` // site location
}

func (*Assignment) TableName() string {
	return "assignments"
}

// StateTransition is one step of a dispatch loop
type StateTransition struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_statetransition_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	ForemanID string    `json:"foremanId" gorm:"size:64"`
	FromState string    `json:"fromState" gorm:"size:32"`
	ToState   string    `json:"toState" gorm:"size:32"`
	Result    string    `json:"result" gorm:"size:32"`
}

func (*StateTransition) TableName() string {
	return "state_transitions"
}

// StatusReport is a worker census taken by a foreman
type StatusReport struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_statusreport_session_id"`
	Session   Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	ForemanID string     `json:"foremanId" gorm:"size:64"`
	Total     uint16     `json:"total"`
	Idle      uint16     `json:"idle"`
	Active    uint16     `json:"active"`
	Nearby    uint16     `json:"nearby"`
	Location  geom.Point `json:"location"` // foreman location
}

func (*StatusReport) TableName() string {
	return "status_reports"
}

// Decision is a parsed vision model answer
type Decision struct {
	ID          uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time      `json:"time"`
	SessionID   uint           `json:"sessionId" gorm:"index:idx_decision_session_id"`
	Session     Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	BrainID     string         `json:"brainId" gorm:"size:64"`
	Command     string         `json:"command" gorm:"size:255"`
	Snap        uint8          `json:"snap"`
	Summary     string         `json:"summary"`
	TargetFound bool           `json:"targetFound" gorm:"default:false"`
	TargetTag   string         `json:"targetTag" gorm:"size:64"`
	Action      datatypes.JSON `json:"action" gorm:"default:'{}'"`
	Raw         string         `json:"raw"`
}

func (*Decision) TableName() string {
	return "decisions"
}
