package convert

import (
	"github.com/wytcherly/foreman/internal/geo"
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/pkg/core"
)

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:               s.UUID,
		Name:             s.Name,
		StartTime:        s.StartTime,
		ExtensionVersion: s.ExtensionVersion,
	}
}

// AssignmentToCore converts a GORM model.Assignment to a core.AssignmentEvent.
func AssignmentToCore(a model.Assignment) core.AssignmentEvent {
	return core.AssignmentEvent{
		ForemanID: a.ForemanID,
		Time:      a.Time,
		WorkerID:  a.WorkerID,
		SiteID:    a.SiteID,
		TaskType:  core.TaskType(a.TaskType),
		Distance:  float64(a.Distance),
		Location:  geo.PositionFromPoint(a.Location),
	}
}

// StateTransitionToCore converts a GORM model.StateTransition to a core.StateTransition.
func StateTransitionToCore(t model.StateTransition) core.StateTransition {
	return core.StateTransition{
		ForemanID: t.ForemanID,
		Time:      t.Time,
		From:      t.FromState,
		To:        t.ToState,
		Result:    t.Result,
	}
}

// StatusReportToCore converts a GORM model.StatusReport to a core.StatusReport.
func StatusReportToCore(r model.StatusReport) core.StatusReport {
	return core.StatusReport{
		ForemanID: r.ForemanID,
		Time:      r.Time,
		Total:     int(r.Total),
		Idle:      int(r.Idle),
		Active:    int(r.Active),
		Nearby:    int(r.Nearby),
		Location:  geo.PositionFromPoint(r.Location),
	}
}
