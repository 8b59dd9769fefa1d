package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wytcherly/foreman/internal/brain"
	"github.com/wytcherly/foreman/internal/cache"
	"github.com/wytcherly/foreman/internal/cogmap"
	"github.com/wytcherly/foreman/internal/condition"
	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/dispatcher"
	"github.com/wytcherly/foreman/internal/foreman"
	"github.com/wytcherly/foreman/internal/geo"
	"github.com/wytcherly/foreman/internal/logging"
	"github.com/wytcherly/foreman/internal/parser"
	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/internal/storage"
	"github.com/wytcherly/foreman/internal/util"
	"github.com/wytcherly/foreman/pkg/core"
	"github.com/wytcherly/foreman/pkg/hostapi"
)

var (
	// ErrUnknownAndroid is returned for commands naming an unregistered android.
	ErrUnknownAndroid = errors.New("unknown android")
	// ErrBrainDisabled is returned by brain commands when no brain is wired.
	ErrBrainDisabled = errors.New("vision brain disabled")
	// ErrSessionActive is returned when a session is started twice.
	ErrSessionActive = errors.New("session already active")
	// ErrNoSession is returned when ending a session that was never started.
	ErrNoSession = errors.New("no active session")
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	LogManager       *logging.SlogManager
	Parser           *parser.Parser
	Registry         registry.Registry
	Perception       *cache.PerceptionCache
	Loop             *foreman.Loop
	Body             *hostapi.Body
	Recorder         *Recorder
	Cogmap           *cogmap.Writer
	Condition        config.ConditionConfig
	ExtensionVersion string
	// Brain is optional.
	Brain *brain.Brain
	// OnSessionEnd runs after the backend finished a session. exportPath is
	// empty unless the backend wrote a file.
	OnSessionEnd func(sess core.Session, exportPath string)
}

type android struct {
	model   *condition.Model
	drainer *condition.Drainer
}

// Service provides the handler methods for host commands.
type Service struct {
	deps         Dependencies
	writeLogFunc func(functionName, data, level string)

	mu       sync.Mutex
	androids map[string]*android
	session  *core.Session
	now      func() time.Time
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.LogManager.Logger())
	}
	if deps.Recorder == nil {
		deps.Recorder = NewRecorder(nil, nil)
	}
	s := &Service{
		deps:     deps,
		androids: make(map[string]*android),
		now:      time.Now,
	}
	s.writeLogFunc = func(functionName, data, level string) {
		deps.LogManager.WriteLog(functionName, data, level)
	}
	return s
}

func (s *Service) writeLog(functionName, data, level string) {
	s.writeLogFunc(functionName, data, level)
}

// SetBackend sets the storage backend for session start/end handling
func (s *Service) SetBackend(b storage.Backend) {
	s.deps.Recorder.SetBackend(b)
}

// SessionActive reports whether a session is being recorded.
func (s *Service) SessionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// SessionAttrs returns log attributes describing the active session.
func (s *Service) SessionAttrs() []slog.Attr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return []slog.Attr{slog.String("session", s.session.Name)}
}

// RegisterHandlers registers the synchronous host commands.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", s.handleVersion)
	d.Register(":SESSION:START:", s.handleSessionStart, dispatcher.Logged())
	d.Register(":SESSION:END:", s.handleSessionEnd, dispatcher.Logged())

	d.Register(":ANDROID:NEW:", s.handleAndroidNew)
	d.Register(":ANDROID:SUBSYSTEM:", s.handleAndroidSubsystem)
	d.Register(":ANDROID:POWER:", s.handleAndroidPower)
	d.Register(":ANDROID:DAMAGE:", s.handleAndroidDamage)
	d.Register(":ANDROID:READINESS:", s.handleAndroidReadiness)
	d.Register(":ANDROID:CAPS:", s.handleAndroidCaps)

	d.Register(":WORKER:UPSERT:", s.handleWorkerUpsert)
	d.Register(":WORKER:STATE:", s.handleWorkerState)
	d.Register(":WORKER:REMOVE:", s.handleWorkerRemove)
	d.Register(":SITE:UPSERT:", s.handleSiteUpsert)
	d.Register(":SITE:RELEASE:", s.handleSiteRelease)
	d.Register(":SITE:REMOVE:", s.handleSiteRemove)

	d.Register(":FOREMAN:POSSESS:", s.handleForemanPossess, dispatcher.Logged())
	d.Register(":FOREMAN:UNPOSSESS:", s.handleForemanUnpossess, dispatcher.Logged())
	d.Register(":FOREMAN:POSITION:", s.handleForemanPosition)
	d.Register(":FOREMAN:ABORT:", s.handleForemanAbort, dispatcher.Logged())
	d.Register(":FOREMAN:PATROL:", s.handleForemanPatrol)
	d.Register(":FOREMAN:STATE:", s.handleForemanState)

	d.Register(":TICK:", s.handleTick)
	d.Register(":REPORT:", s.handleReport)

	d.Register(":BRAIN:COMMAND:", s.handleBrainCommand, dispatcher.Logged())
	d.Register(":BRAIN:CAPTURE:", s.handleBrainCapture)
	d.Register(":BRAIN:MOVE:STATUS:", s.handleBrainMoveStatus)
	d.Register(":BRAIN:STATE:", s.handleBrainState)

	d.Register(":COGMAP:READOUT:", s.handleCogmapReadout)
}

func (s *Service) handleVersion(dispatcher.Event) (any, error) {
	return s.deps.ExtensionVersion, nil
}

// --- sessions ---

func (s *Service) handleSessionStart(e dispatcher.Event) (any, error) {
	name := "session"
	if len(e.Args) > 0 {
		if n := util.CleanArg(e.Args[0]); n != "" {
			name = n
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return nil, ErrSessionActive
	}

	sess := &core.Session{
		ID:               uuid.NewString(),
		Name:             name,
		StartTime:        s.now(),
		ExtensionVersion: s.deps.ExtensionVersion,
	}
	if b := s.deps.Recorder.Backend(); b != nil {
		if err := b.StartSession(sess); err != nil {
			s.writeLog(":SESSION:START:", fmt.Sprintf("backend failed to start session: %v", err), "ERROR")
			return nil, fmt.Errorf("start session: %w", err)
		}
	}
	s.session = sess
	s.deps.Recorder.SetActive(true)
	s.writeLog(":SESSION:START:", fmt.Sprintf("Session %q started (%s)", sess.Name, sess.ID), "INFO")
	return sess.ID, nil
}

func (s *Service) handleSessionEnd(dispatcher.Event) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNoSession
	}

	s.deps.Recorder.SetActive(false)
	sess := s.session
	s.session = nil

	var result any = "ended"
	exportPath := ""
	if b := s.deps.Recorder.Backend(); b != nil {
		if err := b.EndSession(); err != nil {
			s.writeLog(":SESSION:END:", fmt.Sprintf("backend failed to end session: %v", err), "ERROR")
			return nil, fmt.Errorf("end session: %w", err)
		}
		if ex, ok := b.(storage.Exporter); ok && ex.GetExportedFilePath() != "" {
			exportPath = ex.GetExportedFilePath()
			result = exportPath
		}
	}
	if s.deps.OnSessionEnd != nil {
		s.deps.OnSessionEnd(*sess, exportPath)
	}
	s.writeLog(":SESSION:END:", fmt.Sprintf("Session %q ended after %s", sess.Name, s.now().Sub(sess.StartTime).Round(time.Second)), "INFO")
	return result, nil
}

// --- androids ---

func (s *Service) android(id string) (*android, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.androids[util.CleanArg(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAndroid, id)
	}
	return a, nil
}

func argN(e dispatcher.Event, n int) error {
	if len(e.Args) < n {
		return fmt.Errorf("%s: %w: want %d, got %d", e.Command, parser.ErrMissingArgs, n, len(e.Args))
	}
	return nil
}

func (s *Service) handleAndroidNew(e dispatcher.Event) (any, error) {
	spec, err := s.deps.Parser.ParseAndroidNew(e.Args)
	if err != nil {
		return nil, err
	}

	opts := []condition.Option{condition.WithPersonalitySeed(spec.Seed)}
	switch {
	case spec.PowerLevel != nil:
		opts = append(opts, condition.WithPowerLevel(*spec.PowerLevel))
	case s.deps.Condition.PowerLevel > 0:
		opts = append(opts, condition.WithPowerLevel(s.deps.Condition.PowerLevel))
	}
	switch {
	case spec.DrainRate != nil:
		opts = append(opts, condition.WithDrainRate(*spec.DrainRate))
	case s.deps.Condition.DrainRate > 0:
		opts = append(opts, condition.WithDrainRate(s.deps.Condition.DrainRate))
	}
	if s.deps.Condition.DrainInterval > 0 {
		opts = append(opts, condition.WithDrainInterval(s.deps.Condition.DrainInterval))
	}

	m := condition.New(spec.ID, spec.Base, opts...)
	rec := s.deps.Recorder
	m.OnPowerStateChanged(func(c core.PowerStateChange) {
		_ = rec.RecordPowerChange(&c)
	})
	m.OnSubsystemChanged(func(c core.SubsystemChange) {
		_ = rec.RecordSubsystemChange(&c)
	})
	m.OnCapabilitiesChanged(func(c core.CapabilityChange) {
		_ = rec.RecordCapabilityChange(&c)
		s.syncWorkerCapabilities(c.AndroidID, core.NewCapabilitySet(c.Capabilities...))
	})

	s.mu.Lock()
	_, replaced := s.androids[spec.ID]
	s.androids[spec.ID] = &android{model: m, drainer: condition.NewDrainer(m)}
	s.mu.Unlock()

	if replaced {
		s.writeLog(":ANDROID:NEW:", fmt.Sprintf("Android %s re-registered", spec.ID), "WARN")
	}
	return m.Readiness().String(), nil
}

// syncWorkerCapabilities mirrors an android's active set onto its worker entry.
func (s *Service) syncWorkerCapabilities(id string, caps core.CapabilitySet) {
	w, ok := s.deps.Registry.Worker(id)
	if !ok {
		return
	}
	w.Capabilities = caps
	s.deps.Registry.UpsertWorker(w)
}

func (s *Service) handleAndroidSubsystem(e dispatcher.Event) (any, error) {
	id, sub, status, err := s.deps.Parser.ParseSubsystemUpdate(e.Args)
	if err != nil {
		return nil, err
	}
	a, err := s.android(id)
	if err != nil {
		return nil, err
	}
	if err := a.model.SetSubsystemStatus(sub, status); err != nil {
		return nil, err
	}
	return a.model.Readiness().String(), nil
}

func (s *Service) handleAndroidPower(e dispatcher.Event) (any, error) {
	if err := argN(e, 2); err != nil {
		return nil, err
	}
	a, err := s.android(e.Args[0])
	if err != nil {
		return nil, err
	}
	level, err := parser.ParseFloat(e.Args[1])
	if err != nil {
		return nil, err
	}
	a.model.SetPowerLevel(level)
	return a.model.PowerState().String(), nil
}

func (s *Service) handleAndroidDamage(e dispatcher.Event) (any, error) {
	if err := argN(e, 2); err != nil {
		return nil, err
	}
	a, err := s.android(e.Args[0])
	if err != nil {
		return nil, err
	}
	hp, err := parser.ParseFloat(e.Args[1])
	if err != nil {
		return nil, err
	}
	a.model.SetStructuralHP(hp)
	return nil, nil
}

func (s *Service) handleAndroidReadiness(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	a, err := s.android(e.Args[0])
	if err != nil {
		return nil, err
	}
	return a.model.Readiness().String(), nil
}

func (s *Service) handleAndroidCaps(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	a, err := s.android(e.Args[0])
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(a.model.ActiveCapabilities().Strings())
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// --- registry ---

func (s *Service) handleWorkerUpsert(e dispatcher.Event) (any, error) {
	w, err := s.deps.Parser.ParseWorkerUpsert(e.Args)
	if err != nil {
		return nil, err
	}
	if a, err := s.android(w.ID); err == nil {
		w.Capabilities = a.model.ActiveCapabilities()
	}
	return s.deps.Registry.UpsertWorker(w), nil
}

func (s *Service) handleWorkerState(e dispatcher.Event) (any, error) {
	if err := argN(e, 2); err != nil {
		return nil, err
	}
	util.CleanArgs(e.Args)
	state, err := core.ParseWorkerState(e.Args[1])
	if err != nil {
		return nil, err
	}
	return nil, s.deps.Registry.SetWorkerState(e.Args[0], state)
}

func (s *Service) handleWorkerRemove(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	return nil, s.deps.Registry.RemoveWorker(util.CleanArg(e.Args[0]))
}

func (s *Service) handleSiteUpsert(e dispatcher.Event) (any, error) {
	site, err := s.deps.Parser.ParseSiteUpsert(e.Args)
	if err != nil {
		return nil, err
	}
	return s.deps.Registry.UpsertWorkSite(site), nil
}

func (s *Service) handleSiteRelease(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	util.CleanArgs(e.Args)
	reason := core.WorkCompleted
	if len(e.Args) > 1 && e.Args[1] != "" {
		r, err := core.ParseWorkEndReason(e.Args[1])
		if err != nil {
			return nil, err
		}
		reason = r
	}
	worker, err := s.deps.Registry.Release(e.Args[0], reason)
	if err != nil {
		return nil, err
	}
	return worker, nil
}

func (s *Service) handleSiteRemove(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	return nil, s.deps.Registry.RemoveWorkSite(util.CleanArg(e.Args[0]))
}

// --- foreman ---

// updateBody applies "pos[, yaw]" args to the host body.
func (s *Service) updateBody(e dispatcher.Event) error {
	if err := argN(e, 1); err != nil {
		return err
	}
	pos, err := parser.ParsePosition(e.Args[0])
	if err != nil {
		return err
	}
	yaw := s.deps.Body.Yaw()
	if len(e.Args) > 1 {
		if yaw, err = parser.ParseFloat(e.Args[1]); err != nil {
			return err
		}
	}
	s.deps.Body.Update(pos, yaw)
	return nil
}

func (s *Service) handleForemanPossess(e dispatcher.Event) (any, error) {
	if err := s.updateBody(e); err != nil {
		return nil, err
	}
	s.deps.Loop.BindPawn(s.deps.Body)
	s.deps.Loop.Start()
	return s.deps.Loop.State().String(), nil
}

func (s *Service) handleForemanUnpossess(dispatcher.Event) (any, error) {
	s.deps.Loop.Abort(core.AbortForemanOrder)
	s.deps.Loop.UnbindPawn()
	if s.deps.Brain != nil {
		s.deps.Brain.Stop()
	}
	return nil, nil
}

func (s *Service) handleForemanPosition(e dispatcher.Event) (any, error) {
	return nil, s.updateBody(e)
}

func (s *Service) handleForemanAbort(e dispatcher.Event) (any, error) {
	reason := core.AbortForemanOrder
	if len(e.Args) > 0 {
		if raw := util.CleanArg(e.Args[0]); raw != "" {
			r, err := core.ParseAbortReason(raw)
			if err != nil {
				return nil, err
			}
			reason = r
		}
	}
	s.deps.Loop.Abort(reason)
	return s.deps.Loop.State().String(), nil
}

func (s *Service) handleForemanPatrol(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	points, err := geo.ParsePatrolPoints(util.CleanArg(e.Args[0]))
	if err != nil {
		return nil, err
	}
	s.deps.Loop.Survey().SetPatrolPoints(points)
	if route, err := geo.PatrolRoute(points); err == nil {
		s.deps.LogManager.Logger().Info("patrol route set", "points", len(points), "length", route.Length())
	}
	return len(points), nil
}

func (s *Service) handleForemanState(dispatcher.Event) (any, error) {
	return s.deps.Loop.State().String(), nil
}

// handleTick advances every time-driven component by the host frame delta.
func (s *Service) handleTick(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	delta, err := parser.ParseSeconds(e.Args[0])
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	drainers := make([]*condition.Drainer, 0, len(s.androids))
	for _, a := range s.androids {
		drainers = append(drainers, a.drainer)
	}
	s.mu.Unlock()

	for _, d := range drainers {
		d.Advance(delta)
	}
	s.deps.Loop.Tick(delta)
	if s.deps.Brain != nil {
		s.deps.Brain.Tick(delta)
	}
	return nil, nil
}

func (s *Service) handleReport(dispatcher.Event) (any, error) {
	pawn := s.deps.Loop.Pawn()
	if pawn == nil {
		return nil, foreman.ErrNoPawn
	}
	r := s.deps.Loop.Survey().StatusReport(pawn.Location())
	r.ForemanID = s.deps.Loop.ID()
	if err := s.deps.Recorder.RecordStatusReport(&r); err != nil {
		s.writeLog(":REPORT:", fmt.Sprintf("failed to record report: %v", err), "WARN")
	}
	return r.String(), nil
}

// --- brain ---

func (s *Service) handleBrainCommand(e dispatcher.Event) (any, error) {
	if s.deps.Brain == nil {
		return nil, ErrBrainDisabled
	}
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	text := util.CleanArg(e.Args[0])
	if text == "" {
		return nil, errors.New("empty brain command")
	}
	s.deps.Brain.IssueCommand(text)
	return s.deps.Brain.State().String(), nil
}

func (s *Service) handleBrainCapture(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	return nil, s.deps.Body.DeliverFrame(util.CleanArg(e.Args[0]))
}

func (s *Service) handleBrainMoveStatus(e dispatcher.Event) (any, error) {
	if err := argN(e, 1); err != nil {
		return nil, err
	}
	status, err := core.ParseMoveStatus(util.CleanArg(e.Args[0]))
	if err != nil {
		return nil, err
	}
	s.deps.Body.SetMoveStatus(status)
	return nil, nil
}

func (s *Service) handleBrainState(dispatcher.Event) (any, error) {
	if s.deps.Brain == nil {
		return nil, ErrBrainDisabled
	}
	return s.deps.Brain.State().String(), nil
}

func (s *Service) handleCogmapReadout(dispatcher.Event) (any, error) {
	if s.deps.Cogmap == nil {
		return cogmap.NoSensorData, nil
	}
	text, _ := cogmap.Readout(s.deps.Cogmap.Path())
	return text, nil
}
