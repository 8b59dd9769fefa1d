// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wytcherly/foreman/internal/geo"
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/pkg/core"
	"gorm.io/datatypes"
)

// capabilitiesToJSON converts a capability list to datatypes.JSON for DB storage.
func capabilitiesToJSON(caps []core.Capability) datatypes.JSON {
	if len(caps) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(caps)
	return datatypes.JSON(data)
}

// clampCount keeps census counts inside the uint16 columns.
func clampCount(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 0xFFFF:
		return 0xFFFF
	}
	return uint16(n)
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		UUID:             s.ID,
		Name:             s.Name,
		StartTime:        s.StartTime,
		ExtensionVersion: s.ExtensionVersion,
	}
}

// CoreToPowerStateChange converts a core.PowerStateChange to a GORM model.
func CoreToPowerStateChange(e core.PowerStateChange) model.PowerStateChange {
	return model.PowerStateChange{
		Time:       e.Time,
		AndroidID:  e.AndroidID,
		OldState:   e.Old.String(),
		NewState:   e.New.String(),
		PowerLevel: float32(e.PowerLevel),
	}
}

// CoreToSubsystemChange converts a core.SubsystemChange to a GORM model.
func CoreToSubsystemChange(e core.SubsystemChange) model.SubsystemChange {
	return model.SubsystemChange{
		Time:      e.Time,
		AndroidID: e.AndroidID,
		Subsystem: e.Subsystem.String(),
		OldStatus: e.Old.String(),
		NewStatus: e.New.String(),
	}
}

// CoreToCapabilityChange converts a core.CapabilityChange to a GORM model.
func CoreToCapabilityChange(e core.CapabilityChange) model.CapabilityChange {
	return model.CapabilityChange{
		Time:         e.Time,
		AndroidID:    e.AndroidID,
		Capabilities: capabilitiesToJSON(e.Capabilities),
		Readiness:    e.Readiness.String(),
	}
}

// CoreToAssignment converts a core.AssignmentEvent to a GORM model.Assignment.
func CoreToAssignment(e core.AssignmentEvent) model.Assignment {
	return model.Assignment{
		Time:      e.Time,
		ForemanID: e.ForemanID,
		WorkerID:  e.WorkerID,
		SiteID:    e.SiteID,
		TaskType:  string(e.TaskType),
		Distance:  float32(e.Distance),
		Location:  location(e.Location),
	}
}

// CoreToStateTransition converts a core.StateTransition to a GORM model.
func CoreToStateTransition(e core.StateTransition) model.StateTransition {
	return model.StateTransition{
		Time:      e.Time,
		ForemanID: e.ForemanID,
		FromState: e.From,
		ToState:   e.To,
		Result:    e.Result,
	}
}

// CoreToStatusReport converts a core.StatusReport to a GORM model.
func CoreToStatusReport(r core.StatusReport) model.StatusReport {
	return model.StatusReport{
		Time:      r.Time,
		ForemanID: r.ForemanID,
		Total:     clampCount(r.Total),
		Idle:      clampCount(r.Idle),
		Active:    clampCount(r.Active),
		Nearby:    clampCount(r.Nearby),
		Location:  location(r.Location),
	}
}

// CoreToDecision converts a core.DecisionRecord to a GORM model.Decision.
func CoreToDecision(r core.DecisionRecord) model.Decision {
	action, err := json.Marshal(r.Decision.Action)
	if err != nil {
		action = []byte("{}")
	}
	return model.Decision{
		Time:        r.Time,
		BrainID:     r.BrainID,
		Command:     r.Command,
		Snap:        uint8(r.Snap),
		Summary:     r.Decision.Summary,
		TargetFound: r.Decision.TargetFound,
		TargetTag:   r.Decision.TargetTag,
		Action:      datatypes.JSON(action),
		Raw:         r.Raw,
	}
}

// location stores positions the geometry type cannot hold as an empty point,
// which reads back as the zero position.
func location(p core.Position3D) geom.Point {
	pt, err := geo.PointFromPosition(p)
	if err != nil {
		return geom.Point{}
	}
	return pt
}
