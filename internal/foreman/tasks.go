package foreman

import (
	"log/slog"
	"time"

	"github.com/wytcherly/foreman/internal/planner"
	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/pkg/core"
)

const (
	DefaultCheckInterval = 3 * time.Second
	DefaultWaitDuration  = 5 * time.Second
	DefaultScanCommand   = "scan_environment"
)

// env is what every task of one loop shares.
type env struct {
	id        string
	reg       registry.Registry
	planner   *planner.Planner
	commander Commander
	presenter Presenter
	scanner   Scanner
	recorder  Recorder
	survey    *Survey
	logger    *slog.Logger
	now       func() time.Time
	metrics   *loopMetrics
}

// PlanTask picks one (worker, site) pair on entry.
type PlanTask struct {
	env *env
}

func (t *PlanTask) Name() string { return "Plan" }

func (t *PlanTask) Enter(bb *Blackboard) RunStatus {
	bb.ClearSelection()
	if bb.Pawn == nil {
		t.env.logger.Warn("Plan: no pawn, failing")
		return Failed
	}
	a, ok := t.env.planner.Plan(bb.Pawn.Location())
	if !ok {
		t.env.logger.Info("Plan: no job found",
			"idleWorkers", len(t.env.reg.Workers(core.WorkerIdle)),
			"availableSites", len(t.env.reg.WorkSites(true)))
		return Failed
	}
	bb.SetSelection(a)
	t.env.logger.Info("Plan: selected job",
		"worker", a.WorkerID, "site", a.SiteID, "task", a.TaskType, "distance", a.Distance)
	return Succeeded
}

func (t *PlanTask) Tick(*Blackboard, time.Duration) RunStatus { return Succeeded }
func (t *PlanTask) Exit(*Blackboard, ExitResult)              {}

// AssignTask claims the selected site and issues the work order.
// Success means the order was sent, not that the worker accepted it.
type AssignTask struct {
	env *env
}

func (t *AssignTask) Name() string { return "Assign" }

func (t *AssignTask) Enter(bb *Blackboard) RunStatus {
	if bb.Pawn == nil {
		t.env.logger.Warn("Assign: no pawn, failing")
		return Failed
	}
	a, ok := bb.Selection()
	if !ok {
		t.env.logger.Warn("Assign: nothing selected")
		return Failed
	}
	site, ok := t.env.reg.WorkSite(a.SiteID)
	if !ok {
		t.env.logger.Warn("Assign: site vanished", "site", a.SiteID)
		return Failed
	}
	if err := t.env.reg.Claim(a.SiteID, a.WorkerID); err != nil {
		t.env.logger.Warn("Assign: claim failed", "site", a.SiteID, "worker", a.WorkerID, "error", err)
		return Failed
	}
	if err := t.env.reg.SetWorkerState(a.WorkerID, core.WorkerMovingToTask); err != nil {
		t.env.logger.Warn("Assign: worker vanished", "worker", a.WorkerID, "error", err)
		t.rollback(a)
		return Failed
	}
	site.ClaimedBy = a.WorkerID
	if err := t.env.commander.AssignWork(a.WorkerID, site); err != nil {
		t.env.logger.Error("Assign: work order failed", "worker", a.WorkerID, "site", a.SiteID, "error", err)
		t.rollback(a)
		return Failed
	}

	ev := &core.AssignmentEvent{
		ForemanID: t.env.id,
		Time:      t.env.now(),
		WorkerID:  a.WorkerID,
		SiteID:    a.SiteID,
		TaskType:  a.TaskType,
		Distance:  a.Distance,
		Location:  a.Target,
	}
	if err := t.env.recorder.RecordAssignment(ev); err != nil {
		t.env.logger.Warn("Assign: failed to record assignment", "error", err)
	}
	t.env.metrics.assigned(a.TaskType)
	t.env.logger.Info("Assign: work order sent", "worker", a.WorkerID, "site", a.SiteID)
	return Succeeded
}

func (t *AssignTask) rollback(a core.Assignment) {
	if _, err := t.env.reg.Release(a.SiteID, core.WorkAborted); err != nil {
		t.env.logger.Debug("Assign: release after failure", "site", a.SiteID, "error", err)
	}
	_ = t.env.reg.SetWorkerState(a.WorkerID, core.WorkerIdle)
}

func (t *AssignTask) Tick(*Blackboard, time.Duration) RunStatus { return Succeeded }
func (t *AssignTask) Exit(*Blackboard, ExitResult)              {}

// MonitorTask polls until no site is claimed.
type MonitorTask struct {
	env           *env
	CheckInterval time.Duration
	Cue           string

	elapsed time.Duration
}

func (t *MonitorTask) Name() string { return "Monitor" }

func (t *MonitorTask) Enter(bb *Blackboard) RunStatus {
	t.elapsed = 0
	if t.Cue != "" {
		t.env.presenter.PlayCue(t.Cue)
	}
	t.env.logger.Info("Monitor: entering oversight mode", "interval", t.CheckInterval)
	return Running
}

func (t *MonitorTask) Tick(bb *Blackboard, delta time.Duration) RunStatus {
	t.elapsed += delta
	if t.elapsed < t.CheckInterval {
		return Running
	}
	t.elapsed = 0

	if bb.Pawn == nil {
		return Failed
	}

	report := t.env.survey.StatusReport(bb.Pawn.Location())
	report.ForemanID = t.env.id
	t.env.logger.Debug(report.String(), "nearby", report.Nearby)

	if claimed := t.env.reg.ClaimedCount(); claimed > 0 {
		return Running
	}

	if err := t.env.recorder.RecordStatusReport(&report); err != nil {
		t.env.logger.Warn("Monitor: failed to record report", "error", err)
	}
	t.env.logger.Info(report.String())
	t.env.logger.Info("Monitor: no active work, returning to dispatch")
	return Succeeded
}

func (t *MonitorTask) Exit(*Blackboard, ExitResult) {
	t.env.presenter.StopCue()
}

// RallyTask calls every known worker to the foreman.
type RallyTask struct {
	env *env
	Cue string
}

func (t *RallyTask) Name() string { return "Rally" }

func (t *RallyTask) Enter(bb *Blackboard) RunStatus {
	if bb.Pawn == nil {
		t.env.logger.Warn("Rally: no pawn, failing")
		return Failed
	}
	if t.Cue != "" {
		t.env.presenter.PlayCue(t.Cue)
	}
	point := bb.Pawn.Location()
	count := 0
	for _, w := range t.env.reg.Workers() {
		if err := t.env.commander.MoveWorkerTo(w.ID, point); err != nil {
			t.env.logger.Warn("Rally: move order failed", "worker", w.ID, "error", err)
			continue
		}
		count++
	}
	t.env.logger.Info("Rally: called workers", "count", count, "point", point.String())
	return Succeeded
}

func (t *RallyTask) Tick(*Blackboard, time.Duration) RunStatus { return Succeeded }
func (t *RallyTask) Exit(*Blackboard, ExitResult)              {}

// WaitTask idles for Duration, optionally asking for an environment scan.
type WaitTask struct {
	env         *env
	Duration    time.Duration
	TriggerScan bool
	ScanCommand string
	Cue         string

	elapsed time.Duration
}

func (t *WaitTask) Name() string { return "Wait" }

func (t *WaitTask) Enter(bb *Blackboard) RunStatus {
	t.elapsed = 0
	if t.Cue != "" {
		t.env.presenter.PlayCue(t.Cue)
	}
	t.env.logger.Info("Wait: idling", "duration", t.Duration, "scan", t.TriggerScan)
	if t.TriggerScan && t.env.scanner != nil {
		t.env.scanner.IssueCommand(t.ScanCommand)
	}
	return Running
}

func (t *WaitTask) Tick(_ *Blackboard, delta time.Duration) RunStatus {
	t.elapsed += delta
	if t.elapsed >= t.Duration {
		return Succeeded
	}
	return Running
}

func (t *WaitTask) Exit(*Blackboard, ExitResult) {
	t.env.presenter.StopCue()
}
