// Package foreman runs the dispatch loop of a coordinating agent:
// Plan, Assign, Monitor, Rally and Wait, driven by an external tick.
package foreman

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wytcherly/foreman/internal/planner"
	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/pkg/core"
)

// ErrNoPawn is returned by operations that need a bound foreman pawn.
var ErrNoPawn = errors.New("no foreman pawn bound")

// State is a dispatch loop state.
type State uint8

const (
	StateStopped State = iota
	StatePlan
	StateAssign
	StateMonitor
	StateRally
	StateWait
)

var stateNames = [...]string{"Stopped", "Plan", "Assign", "Monitor", "Rally", "Wait"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// ParseState converts a state name to a State.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return StateStopped, fmt.Errorf("unknown foreman state %q", s)
}

// maxChain bounds the transitions taken in a single tick.
const maxChain = len(stateNames) - 1

// Config holds the loop timings and presentation cues.
type Config struct {
	CheckInterval time.Duration
	WaitDuration  time.Duration
	TriggerScan   bool
	ScanCommand   string
	ScanInterval  time.Duration
	SurveyRadius  float64
	// RequireWorkToPlan gates Wait -> Plan on an idle worker and an available site.
	RequireWorkToPlan bool

	MonitorCue string
	WaitCue    string
	RallyCue   string
}

// DefaultConfig returns the stock loop configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     DefaultCheckInterval,
		WaitDuration:      DefaultWaitDuration,
		ScanCommand:       DefaultScanCommand,
		ScanInterval:      DefaultScanInterval,
		SurveyRadius:      DefaultSurveyRadius,
		RequireWorkToPlan: true,
	}
}

// Dependencies are the loop's collaborators. Registry and Commander are required.
type Dependencies struct {
	ID         string
	Registry   registry.Registry
	Commander  Commander
	Presenter  Presenter
	Scanner    Scanner
	Recorder   Recorder
	Perception PerceptionFeed
	Logger     *slog.Logger
}

// Loop is one foreman's dispatch state machine. It is safe for concurrent
// use; all transitions happen under a single lock.
type Loop struct {
	mu sync.Mutex

	cfg       Config
	env       *env
	bb        Blackboard
	tasks     map[State]Task
	evaluator *WorkAvailability

	state      State
	pending    RunStatus
	hasPending bool
}

// NewLoop wires a loop. It starts stopped.
func NewLoop(cfg Config, deps Dependencies) (*Loop, error) {
	if deps.Registry == nil {
		return nil, errors.New("foreman: registry is required")
	}
	if deps.Commander == nil {
		return nil, errors.New("foreman: commander is required")
	}
	if deps.Presenter == nil {
		deps.Presenter = nopPresenter{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	metrics, err := newLoopMetrics()
	if err != nil {
		return nil, fmt.Errorf("foreman: metrics: %w", err)
	}

	e := &env{
		id:        deps.ID,
		reg:       deps.Registry,
		planner:   planner.New(deps.Registry),
		commander: deps.Commander,
		presenter: deps.Presenter,
		scanner:   deps.Scanner,
		recorder:  deps.Recorder,
		survey:    NewSurvey(deps.Registry, deps.Perception, cfg.SurveyRadius),
		logger:    deps.Logger.With("foreman", deps.ID),
		now:       time.Now,
		metrics:   metrics,
	}

	l := &Loop{
		env:       e,
		evaluator: NewWorkAvailability(deps.Registry, cfg.ScanInterval),
		tasks: map[State]Task{
			StatePlan:    &PlanTask{env: e},
			StateAssign:  &AssignTask{env: e},
			StateMonitor: &MonitorTask{env: e},
			StateRally:   &RallyTask{env: e},
			StateWait:    &WaitTask{env: e},
		},
	}
	l.applyConfig(cfg)
	return l, nil
}

func (l *Loop) applyConfig(cfg Config) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.WaitDuration <= 0 {
		cfg.WaitDuration = DefaultWaitDuration
	}
	if cfg.ScanCommand == "" {
		cfg.ScanCommand = DefaultScanCommand
	}
	l.cfg = cfg

	m := l.tasks[StateMonitor].(*MonitorTask)
	m.CheckInterval = cfg.CheckInterval
	m.Cue = cfg.MonitorCue

	w := l.tasks[StateWait].(*WaitTask)
	w.Duration = cfg.WaitDuration
	w.TriggerScan = cfg.TriggerScan
	w.ScanCommand = cfg.ScanCommand
	w.Cue = cfg.WaitCue

	l.tasks[StateRally].(*RallyTask).Cue = cfg.RallyCue
}

// SetConfig replaces the timings. Running tasks pick them up on their next tick.
func (l *Loop) SetConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyConfig(cfg)
	if cfg.ScanInterval > 0 {
		l.evaluator.interval = cfg.ScanInterval
	}
}

// Config returns the active configuration.
func (l *Loop) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// ID returns the foreman ID.
func (l *Loop) ID() string { return l.env.id }

// Survey returns the loop's survey.
func (l *Loop) Survey() *Survey { return l.env.survey }

// BindPawn attaches the foreman's body.
func (l *Loop) BindPawn(p Pawn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bb.Pawn = p
	l.evaluator.Scan(p)
}

// UnbindPawn detaches the foreman's body. Tasks that need it fail on their
// next entry or poll.
func (l *Loop) UnbindPawn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bb.Pawn = nil
	l.evaluator.Scan(nil)
}

// Pawn returns the bound pawn, or nil.
func (l *Loop) Pawn() Pawn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bb.Pawn
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Selected returns the pair carried from Plan into Assign.
func (l *Loop) Selected() (core.Assignment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bb.Selection()
}

// Availability returns the evaluator's last census.
func (l *Loop) Availability() Availability {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evaluator.Last()
}

// Start enters Plan. Starting a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStopped {
		return
	}
	l.evaluator.Start(l.bb.Pawn)
	l.enter(StatePlan, StateStopped, ExitSucceeded)
}

// Tick advances the loop by delta.
func (l *Loop) Tick(delta time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return
	}
	l.evaluator.Tick(l.bb.Pawn, delta)

	if l.hasPending {
		status := l.pending
		l.hasPending = false
		l.advance(status)
		return
	}
	l.advance(l.tasks[l.state].Tick(&l.bb, delta))
}

// Abort exits the current task and stops the loop. A worker sent out by
// this loop is told to abort its task; the site claim is left to the host.
func (l *Loop) Abort(reason core.AbortReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return
	}
	from := l.state
	l.tasks[from].Exit(&l.bb, ExitAborted)
	if from == StateMonitor {
		if a, ok := l.bb.Selection(); ok {
			if err := l.env.commander.AbortWorker(a.WorkerID, reason); err != nil {
				l.env.logger.Warn("abort order failed", "worker", a.WorkerID, "error", err)
			}
		}
	}
	l.record(from, StateStopped, ExitAborted)
	l.state = StateStopped
	l.hasPending = false
	l.env.logger.Info("dispatch loop aborted", "state", from.String(), "reason", reason.String())
}

// Interrupt aborts the current task and enters next. It starts a stopped loop.
func (l *Loop) Interrupt(next State) error {
	if next == StateStopped || int(next) >= len(stateNames) {
		return fmt.Errorf("foreman: cannot interrupt into %s", next)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	from := l.state
	result := ExitAborted
	if from == StateStopped {
		l.evaluator.Start(l.bb.Pawn)
		result = ExitSucceeded
	} else {
		l.tasks[from].Exit(&l.bb, ExitAborted)
	}
	l.hasPending = false
	l.enter(next, from, result)
	return nil
}

// enter records the transition and runs the chain that follows.
func (l *Loop) enter(next, from State, result ExitResult) {
	l.record(from, next, result)
	l.state = next
	l.advance(l.tasks[next].Enter(&l.bb))
}

// advance follows completed tasks for at most maxChain steps. A status left
// over when the chain is exhausted is applied on the next tick.
func (l *Loop) advance(status RunStatus) {
	for steps := 0; status != Running; steps++ {
		if steps >= maxChain {
			l.pending = status
			l.hasPending = true
			return
		}
		from := l.state
		result := exitResultFor(status)
		l.tasks[from].Exit(&l.bb, result)

		next := l.successor(from, status)
		l.record(from, next, result)
		l.state = next
		status = l.tasks[next].Enter(&l.bb)
	}
}

func (l *Loop) successor(from State, status RunStatus) State {
	switch from {
	case StatePlan:
		if status == Succeeded {
			return StateAssign
		}
	case StateAssign:
		if status == Succeeded {
			return StateMonitor
		}
	case StateMonitor:
		if status == Succeeded {
			return StateRally
		}
	case StateWait:
		if status == Succeeded && l.readyToPlan() {
			return StatePlan
		}
	}
	return StateWait
}

func (l *Loop) readyToPlan() bool {
	if !l.cfg.RequireWorkToPlan {
		return true
	}
	a := l.evaluator.Scan(l.bb.Pawn)
	return HasIdleWorkers(a) && HasAvailableWork(a)
}

func (l *Loop) record(from, to State, result ExitResult) {
	l.env.metrics.transitioned(l.env.id, from, to, result)
	l.env.logger.Debug("transition", "from", from.String(), "to", to.String(), "result", result.String())
	ev := &core.StateTransition{
		ForemanID: l.env.id,
		Time:      l.env.now(),
		From:      from.String(),
		To:        to.String(),
		Result:    result.String(),
	}
	if err := l.env.recorder.RecordStateTransition(ev); err != nil {
		l.env.logger.Warn("failed to record transition", "error", err)
	}
}
