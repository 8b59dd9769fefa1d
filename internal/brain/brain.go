// Package brain is the foreman's vision decision loop: it looks around in
// fixed yaw steps, asks a vision model what it sees, and carries out
// fetch-and-place commands based on the answer.
package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wytcherly/foreman/internal/queue"
	"github.com/wytcherly/foreman/pkg/core"
)

const (
	DefaultSnapsPerScan     = 4
	DefaultYawStep          = 90.0
	DefaultSnapInterval     = 2 * time.Second
	DefaultArrivalDistance  = 150.0
	DefaultAcceptanceRadius = 50.0
	DefaultPriorityTag      = "red_cone"
	DefaultMaxRescans       = 3
)

// Body is the foreman's movable body.
type Body interface {
	Location() core.Position3D
	Yaw() float64
	SetYaw(deg float64)
	// MoveTo and MoveToEntity request a move; pathfinding=false is a direct move.
	MoveTo(target core.Position3D, acceptance float64, pathfinding bool) core.MoveResult
	MoveToEntity(entityID string, acceptance float64, pathfinding bool) core.MoveResult
	StopMovement()
	MoveStatus() core.MoveStatus
	Attach(entityID string) error
	Detach(at core.Position3D) error
}

// SceneCapturer returns an encoded image of what the body currently faces.
type SceneCapturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Decider asks the vision model for a decision and returns its raw text.
type Decider interface {
	Decide(ctx context.Context, image []byte, contextJSON string) (string, error)
}

// Perception is the brain's view of perceived entities.
type Perception interface {
	CurrentlyPerceived() []core.PerceivedEntity
	KnownPerceived() []core.PerceivedEntity
	// FindByTag looks in the visible set first and the known set second.
	FindByTag(tag string) (core.PerceivedEntity, bool)
}

// Recorder persists parsed decisions.
type Recorder interface {
	RecordDecision(d *core.DecisionRecord) error
}

// MapWriter receives the perception snapshot behind every parsed decision.
type MapWriter interface {
	Update(entities []core.PerceivedEntity, at time.Time) error
}

// Config holds the brain's tunables.
type Config struct {
	SnapsPerScan     int
	YawStep          float64
	SnapInterval     time.Duration
	ArrivalDistance  float64
	AcceptanceRadius float64
	PriorityTag      string
	// Destination is where picked-up entities are carried.
	Destination core.Position3D
	// MaxRescans bounds re-scans caused by stale targets per command.
	MaxRescans int
}

// DefaultConfig returns the stock brain configuration.
func DefaultConfig() Config {
	return Config{
		SnapsPerScan:     DefaultSnapsPerScan,
		YawStep:          DefaultYawStep,
		SnapInterval:     DefaultSnapInterval,
		ArrivalDistance:  DefaultArrivalDistance,
		AcceptanceRadius: DefaultAcceptanceRadius,
		PriorityTag:      DefaultPriorityTag,
		MaxRescans:       DefaultMaxRescans,
	}
}

// Dependencies are the brain's collaborators. Recorder and Map are optional.
type Dependencies struct {
	ID         string
	Body       Body
	Capturer   SceneCapturer
	Decider    Decider
	Perception Perception
	Recorder   Recorder
	Map        MapWriter
	Logger     *slog.Logger
}

type response struct {
	gen     uint64
	snap    int
	command string
	context []core.PerceivedEntity
	raw     string
	err     error
}

// Brain is the vision decision state machine. Model calls run in the
// background; their results are applied on the next Tick, and only if the
// brain has not changed state since the call was issued.
type Brain struct {
	mu sync.Mutex

	cfg    Config
	deps   Dependencies
	parser *DecisionParser
	logger *slog.Logger
	now    func() time.Time

	state       BrainState
	command     string
	targetTag   string
	held        string
	initialYaw  float64
	timer       time.Duration
	snaps       int
	waiting     bool
	rescans     int
	lastSummary string

	gen       uint64
	cycleCtx  context.Context
	cancel    context.CancelFunc
	responses *queue.Queue[response]
	inflight  sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// BrainState aliases the shared state enum.
type BrainState = core.BrainState

// New creates an idle brain.
func New(cfg Config, deps Dependencies) (*Brain, error) {
	if deps.Body == nil || deps.Capturer == nil || deps.Decider == nil || deps.Perception == nil {
		return nil, errors.New("brain: body, capturer, decider and perception are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	parser, err := NewDecisionParser()
	if err != nil {
		return nil, err
	}
	if cfg.SnapsPerScan <= 0 {
		cfg.SnapsPerScan = DefaultSnapsPerScan
	}
	if cfg.SnapInterval <= 0 {
		cfg.SnapInterval = DefaultSnapInterval
	}
	if cfg.YawStep == 0 {
		cfg.YawStep = DefaultYawStep
	}
	if cfg.ArrivalDistance <= 0 {
		cfg.ArrivalDistance = DefaultArrivalDistance
	}
	if cfg.AcceptanceRadius <= 0 {
		cfg.AcceptanceRadius = DefaultAcceptanceRadius
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	b := &Brain{
		cfg:        cfg,
		deps:       deps,
		parser:     parser,
		logger:     deps.Logger.With("brain", deps.ID),
		now:        time.Now,
		responses:  queue.New[response](),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	b.cycleCtx, b.cancel = context.WithCancel(baseCtx)
	return b, nil
}

// Close cancels outstanding model calls and waits for them to return.
func (b *Brain) Close() {
	b.baseCancel()
	b.inflight.Wait()
	b.responses.Clear()
}

// State returns the current state.
func (b *Brain) State() BrainState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Command returns the command being executed.
func (b *Brain) Command() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.command
}

// LastSummary returns the summary of the last parsed decision.
func (b *Brain) LastSummary() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSummary
}

// Pending returns the number of model responses waiting for the next tick.
func (b *Brain) Pending() int {
	return b.responses.Len()
}

// IssueCommand starts a look-around scan for text.
func (b *Brain) IssueCommand(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger.Info("command received", "command", text)
	b.command = text
	b.rescans = 0
	b.startScan()
}

// Stop abandons the current command and goes idle.
func (b *Brain) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deps.Body.StopMovement()
	b.setState(core.BrainIdle)
}

func (b *Brain) startScan() {
	b.initialYaw = b.deps.Body.Yaw()
	b.setState(core.BrainLookingAround)
	b.deps.Body.StopMovement()
}

// setState switches state and invalidates every model call in flight.
func (b *Brain) setState(next BrainState) {
	prev := b.state
	b.state = next
	b.timer = 0
	b.snaps = 0
	b.waiting = false

	b.gen++
	b.cancel()
	b.cycleCtx, b.cancel = context.WithCancel(b.baseCtx)

	if prev != next {
		b.logger.Debug("state", "from", prev.String(), "to", next.String())
	}
}

// Tick applies finished model calls and advances the current state.
func (b *Brain) Tick(delta time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.responses.Drain() {
		if r.gen != b.gen {
			b.logger.Debug("dropping stale response", "snap", r.snap)
			continue
		}
		b.handleResponse(r)
	}

	switch b.state {
	case core.BrainLookingAround:
		b.tickLookAround(delta)
	case core.BrainNavigatingToTarget, core.BrainNavigatingToDestination:
		b.tickNavigating()
	}
}

func (b *Brain) tickLookAround(delta time.Duration) {
	if b.waiting {
		return
	}
	if b.snaps >= b.cfg.SnapsPerScan {
		b.logger.Info("target not found after full scan", "command", b.command)
		b.setState(core.BrainIdle)
		return
	}

	b.timer += delta
	if b.timer < b.cfg.SnapInterval {
		return
	}
	b.timer = 0

	yaw := normalizeAxis(b.initialYaw + float64(b.snaps)*b.cfg.YawStep)
	b.deps.Body.SetYaw(yaw)
	b.snaps++
	b.logger.Debug("snap", "n", b.snaps, "yaw", yaw)
	b.snapAndAnalyse()
}

func (b *Brain) snapAndAnalyse() {
	image, err := b.deps.Capturer.Capture(b.cycleCtx)
	if err != nil || len(image) == 0 {
		b.logger.Warn("scene capture failed", "snap", b.snaps, "error", err)
		return
	}

	visible := b.deps.Perception.CurrentlyPerceived()
	known := b.deps.Perception.KnownPerceived()
	contextJSON := BuildContext(b.command, b.deps.Body.Location(), visible, known, b.cfg.PriorityTag)

	b.waiting = true
	r := response{gen: b.gen, snap: b.snaps, command: b.command, context: known}
	ctx := b.cycleCtx
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		r.raw, r.err = b.deps.Decider.Decide(ctx, image, contextJSON)
		if ctx.Err() != nil {
			return
		}
		b.responses.Push(r)
	}()
}

func (b *Brain) handleResponse(r response) {
	b.waiting = false
	if r.err != nil {
		b.logger.Error("decision request failed", "snap", r.snap, "error", r.err)
		return
	}

	d, err := b.parser.Parse(r.raw)
	if err != nil {
		b.logger.Error("dropping decision", "snap", r.snap, "error", err, "raw", r.raw)
		return
	}
	b.lastSummary = d.Summary
	b.logger.Info("decision", "summary", d.Summary, "targetFound", d.TargetFound, "targetTag", d.TargetTag, "action", d.Action.Action)

	at := b.now()
	if b.deps.Recorder != nil {
		rec := &core.DecisionRecord{
			BrainID:  b.deps.ID,
			Time:     at,
			Command:  r.command,
			Snap:     r.snap,
			Decision: d,
			Raw:      r.raw,
		}
		if err := b.deps.Recorder.RecordDecision(rec); err != nil {
			b.logger.Warn("failed to record decision", "error", err)
		}
	}
	if b.deps.Map != nil {
		if err := b.deps.Map.Update(r.context, at); err != nil {
			b.logger.Warn("failed to update cognitive map", "error", err)
		}
	}

	if !d.TargetFound || d.TargetTag == "" {
		return
	}

	target, ok := b.deps.Perception.FindByTag(d.TargetTag)
	if !ok {
		b.rescan("decision target not perceived", d.TargetTag)
		return
	}
	b.targetTag = d.TargetTag
	b.moveToEntity(target.ID)
	b.setState(core.BrainNavigatingToTarget)
	b.logger.Info("target found, moving", "tag", d.TargetTag, "entity", target.ID)
}

// rescan restarts the look-around after a stale target, up to MaxRescans times.
func (b *Brain) rescan(why, tag string) {
	if b.rescans >= b.cfg.MaxRescans {
		b.logger.Warn("giving up on stale target", "reason", why, "tag", tag, "rescans", b.rescans)
		b.deps.Body.StopMovement()
		b.setState(core.BrainIdle)
		return
	}
	b.rescans++
	b.logger.Warn("target lost, re-scanning", "reason", why, "tag", tag, "rescan", b.rescans)
	b.startScan()
}

func (b *Brain) tickNavigating() {
	if b.deps.Body.MoveStatus() != core.MoveIdle {
		return
	}

	switch b.state {
	case core.BrainNavigatingToTarget:
		target, ok := b.deps.Perception.FindByTag(b.targetTag)
		if !ok {
			b.rescan("target vanished before pickup", b.targetTag)
			return
		}
		dist := b.deps.Body.Location().DistanceTo(target.Location)
		if dist > b.cfg.ArrivalDistance {
			b.logger.Info("did not reach target, retrying", "distance", dist)
			b.moveToEntity(target.ID)
			return
		}
		b.setState(core.BrainPickingUp)
		b.pickUp(target)

	case core.BrainNavigatingToDestination:
		if b.held == "" {
			b.logger.Error("arrived at destination holding nothing")
			b.setState(core.BrainIdle)
			return
		}
		b.setState(core.BrainPlacing)
		if err := b.deps.Body.Detach(b.cfg.Destination); err != nil {
			b.logger.Error("place failed", "entity", b.held, "error", err)
		}
		b.logger.Info("placed entity", "entity", b.held, "at", b.cfg.Destination.String())
		b.held = ""
		b.setState(core.BrainTaskComplete)
	}
}

func (b *Brain) pickUp(target core.PerceivedEntity) {
	if err := b.deps.Body.Attach(target.ID); err != nil {
		b.logger.Error("pickup failed", "entity", target.ID, "error", err)
		b.setState(core.BrainIdle)
		return
	}
	b.held = target.ID
	b.logger.Info("picked up entity", "entity", target.ID)
	b.moveTo(b.cfg.Destination)
	b.setState(core.BrainNavigatingToDestination)
}

func (b *Brain) moveTo(target core.Position3D) core.MoveResult {
	r := b.deps.Body.MoveTo(target, b.cfg.AcceptanceRadius, true)
	if r == core.MoveFailed {
		r = b.deps.Body.MoveTo(target, b.cfg.AcceptanceRadius, false)
	}
	b.logger.Debug("move to location", "result", r.String(), "target", target.String())
	return r
}

func (b *Brain) moveToEntity(id string) core.MoveResult {
	r := b.deps.Body.MoveToEntity(id, b.cfg.AcceptanceRadius, true)
	if r == core.MoveFailed {
		r = b.deps.Body.MoveToEntity(id, b.cfg.AcceptanceRadius, false)
	}
	b.logger.Debug("move to entity", "result", r.String(), "entity", id)
	return r
}

// normalizeAxis maps deg into (-180, 180].
func normalizeAxis(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= -180 {
		deg += 360
	} else if deg > 180 {
		deg -= 360
	}
	return deg
}

func (b *Brain) String() string {
	return fmt.Sprintf("brain %s: %s", b.deps.ID, b.State())
}
