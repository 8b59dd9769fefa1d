package foreman

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/pkg/core"
)

type harness struct {
	reg       *registry.Memory
	commander *fakeCommander
	presenter *fakePresenter
	scanner   *fakeScanner
	recorder  *fakeRecorder
	loop      *Loop
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		reg:       registry.NewMemory(),
		commander: &fakeCommander{},
		presenter: &fakePresenter{},
		scanner:   &fakeScanner{},
		recorder:  &fakeRecorder{},
	}
	cfg := DefaultConfig()
	cfg.MonitorCue = "oversee"
	cfg.WaitCue = "idle"
	if mutate != nil {
		mutate(&cfg)
	}
	loop, err := NewLoop(cfg, Dependencies{
		ID:        "foreman-1",
		Registry:  h.reg,
		Commander: h.commander,
		Presenter: h.presenter,
		Scanner:   h.scanner,
		Recorder:  h.recorder,
	})
	require.NoError(t, err)
	h.loop = loop
	return h
}

func (h *harness) addWork() {
	h.reg.UpsertWorker(core.Worker{ID: "w1", State: core.WorkerIdle, Location: core.Position3D{X: 5}})
	h.reg.UpsertWorkSite(core.WorkSite{ID: "s1", TaskType: core.TaskBuild, Operational: true, Location: core.Position3D{X: 40}})
}

func TestNewLoop_RequiresRegistryAndCommander(t *testing.T) {
	_, err := NewLoop(DefaultConfig(), Dependencies{Commander: &fakeCommander{}})
	assert.Error(t, err)

	_, err = NewLoop(DefaultConfig(), Dependencies{Registry: registry.NewMemory()})
	assert.Error(t, err)
}

func TestLoop_NoPawnFailsPlan(t *testing.T) {
	h := newHarness(t, nil)
	h.addWork()

	h.loop.Start()

	assert.Equal(t, StateWait, h.loop.State())
	assert.Equal(t, []string{"Stopped>Plan", "Plan>Wait"}, h.recorder.path())
	assert.Equal(t, "Failed", h.recorder.transitions[1].Result)
	assert.Empty(t, h.commander.assigns)
}

func TestLoop_FullCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.addWork()
	h.loop.BindPawn(StaticPawn{})

	h.loop.Start()

	require.Equal(t, StateMonitor, h.loop.State())
	assert.Equal(t, []assignCall{{WorkerID: "w1", SiteID: "s1"}}, h.commander.assigns)

	site, _ := h.reg.WorkSite("s1")
	assert.Equal(t, "w1", site.ClaimedBy)
	worker, _ := h.reg.Worker("w1")
	assert.Equal(t, core.WorkerMovingToTask, worker.State)

	sel, ok := h.loop.Selected()
	require.True(t, ok)
	assert.Equal(t, "s1", sel.SiteID)
	require.Len(t, h.recorder.assignments, 1)
	assert.InDelta(t, 40.0, h.recorder.assignments[0].Distance, 1e-9)
	assert.Equal(t, []string{"oversee"}, h.presenter.played)

	h.loop.Tick(time.Second)
	assert.Equal(t, StateMonitor, h.loop.State())

	// Site completes between polls.
	_, err := h.reg.Release("s1", core.WorkCompleted)
	require.NoError(t, err)

	h.loop.Tick(2 * time.Second)

	assert.Equal(t, StateWait, h.loop.State())
	assert.Equal(t, []string{
		"Stopped>Plan", "Plan>Assign", "Assign>Monitor",
		"Monitor>Rally", "Rally>Wait",
	}, h.recorder.path())
	assert.Equal(t, []moveCall{{WorkerID: "w1", Location: core.Position3D{}}}, h.commander.moves)
	require.Len(t, h.recorder.reports, 1)
	assert.Equal(t, "Foreman Report: 1 total workers, 0 idle, 1 active", h.recorder.reports[0].String())
	assert.Equal(t, 1, h.presenter.stopped)
}

func TestLoop_MonitorStaysRunningWhileClaimed(t *testing.T) {
	h := newHarness(t, nil)
	h.addWork()
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()

	for i := 0; i < 4; i++ {
		h.loop.Tick(3 * time.Second)
		assert.Equal(t, StateMonitor, h.loop.State())
	}
	assert.Empty(t, h.recorder.reports)
}

func TestLoop_MonitorFailsWhenPawnLost(t *testing.T) {
	h := newHarness(t, nil)
	h.addWork()
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()
	require.Equal(t, StateMonitor, h.loop.State())

	h.loop.UnbindPawn()
	h.loop.Tick(3 * time.Second)

	assert.Equal(t, StateWait, h.loop.State())
	last := h.recorder.transitions[len(h.recorder.transitions)-1]
	assert.Equal(t, "Monitor", last.From)
	assert.Equal(t, "Failed", last.Result)
}

func TestLoop_AbortWaitStopsCueOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()
	require.Equal(t, StateWait, h.loop.State())
	assert.Equal(t, 0, h.presenter.stopped)

	h.loop.Tick(time.Second)
	h.loop.Abort(core.AbortForemanOrder)

	assert.Equal(t, StateStopped, h.loop.State())
	assert.Equal(t, 1, h.presenter.stopped)

	h.loop.Abort(core.AbortForemanOrder)
	h.loop.Tick(10 * time.Second)
	assert.Equal(t, 1, h.presenter.stopped)
}

func TestLoop_AbortMonitorStopsWorker(t *testing.T) {
	h := newHarness(t, nil)
	h.addWork()
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()
	require.Equal(t, StateMonitor, h.loop.State())

	h.loop.Abort(core.AbortEmergency)

	assert.Equal(t, []abortCall{{WorkerID: "w1", Reason: core.AbortEmergency}}, h.commander.aborts)
	assert.Equal(t, 1, h.presenter.stopped)
	site, _ := h.reg.WorkSite("s1")
	assert.Equal(t, "w1", site.ClaimedBy)
}

func TestLoop_WaitTriggersScan(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TriggerScan = true })
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()

	assert.Equal(t, []string{DefaultScanCommand}, h.scanner.commands)

	h.loop.Tick(5 * time.Second)
	assert.Equal(t, StateWait, h.loop.State())
	assert.Equal(t, []string{DefaultScanCommand, DefaultScanCommand}, h.scanner.commands)
}

func TestLoop_WaitGatesPlanOnAvailability(t *testing.T) {
	tests := []struct {
		name      string
		require   bool
		wantAfter []string
	}{
		{
			name:      "gated",
			require:   true,
			wantAfter: []string{"Wait>Wait"},
		},
		{
			name:      "ungated",
			require:   false,
			wantAfter: []string{"Wait>Plan", "Plan>Wait"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *Config) { c.RequireWorkToPlan = tt.require })
			h.loop.BindPawn(StaticPawn{})
			h.loop.Start()
			before := len(h.recorder.transitions)

			h.loop.Tick(4 * time.Second)
			assert.Len(t, h.recorder.transitions, before)

			h.loop.Tick(time.Second)
			assert.Equal(t, tt.wantAfter, h.recorder.path()[before:])
			assert.Equal(t, StateWait, h.loop.State())
		})
	}
}

func TestLoop_WaitReturnsToPlanWhenWorkAppears(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()
	require.Equal(t, StateWait, h.loop.State())

	h.addWork()
	h.loop.Tick(5 * time.Second)

	assert.Equal(t, StateMonitor, h.loop.State())
	assert.Len(t, h.commander.assigns, 1)
}

func TestLoop_AssignFailureRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.addWork()
	h.commander.assignErr = errors.New("link down")
	h.loop.BindPawn(StaticPawn{})

	h.loop.Start()

	assert.Equal(t, StateWait, h.loop.State())
	site, _ := h.reg.WorkSite("s1")
	assert.False(t, site.Claimed())
	worker, _ := h.reg.Worker("w1")
	assert.Equal(t, core.WorkerIdle, worker.State)
	assert.Empty(t, h.recorder.assignments)
}

func TestLoop_Interrupt(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()
	require.Equal(t, StateWait, h.loop.State())

	h.addWork()
	require.NoError(t, h.loop.Interrupt(StatePlan))

	assert.Equal(t, StateMonitor, h.loop.State())
	assert.Equal(t, 1, h.presenter.stopped)
	assert.Contains(t, h.recorder.path(), "Wait>Plan")

	assert.Error(t, h.loop.Interrupt(StateStopped))
}

func TestLoop_InterruptStartsStoppedLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.BindPawn(StaticPawn{})

	require.NoError(t, h.loop.Interrupt(StateWait))

	assert.Equal(t, StateWait, h.loop.State())
	assert.Equal(t, []string{"Stopped>Wait"}, h.recorder.path())
}

func TestLoop_SetConfig(t *testing.T) {
	h := newHarness(t, nil)
	h.loop.BindPawn(StaticPawn{})
	h.loop.Start()

	cfg := h.loop.Config()
	cfg.WaitDuration = time.Second
	h.loop.SetConfig(cfg)

	before := len(h.recorder.transitions)
	h.loop.Tick(time.Second)
	assert.Equal(t, []string{"Wait>Wait"}, h.recorder.path()[before:])
}

func TestParseState(t *testing.T) {
	for _, s := range []State{StateStopped, StatePlan, StateAssign, StateMonitor, StateRally, StateWait} {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseState("Dance")
	assert.Error(t, err)
}
