package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/wytcherly/foreman/internal/condition"
	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/foreman"
	"github.com/wytcherly/foreman/internal/handlers"
	"github.com/wytcherly/foreman/internal/parser"
	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/internal/storage/memory"
	"github.com/wytcherly/foreman/pkg/core"
)

func newSimCmd() *cobra.Command {
	var (
		scenarioPath string
		exportDir    string
		verbose      bool
	)
	cmd := &cobra.Command{
		Use:   "sim --scenario file.yaml",
		Short: "Run the dispatch loop headless against a scenario",
		Long: "Load workers and sites from a YAML scenario, run the foreman dispatch loop\n" +
			"with instant moves, and print every state transition and the final report.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			if verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			res, err := runSim(sc, simOptions{Out: cmd.OutOrStdout(), ExportDir: exportDir, Logger: logger})
			if err != nil {
				return err
			}
			if res.ExportPath != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "exported", res.ExportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file")
	cmd.Flags().StringVar(&exportDir, "export", "", "write the session as JSON into this directory")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log loop internals to stderr")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

type simOptions struct {
	Out       io.Writer
	ExportDir string
	Logger    *slog.Logger
}

type simResult struct {
	Report      core.StatusReport
	Assignments int
	Completed   int
	Transitions int
	ExportPath  string
}

// simWorld stands in for the host: moves are instant and work finishes
// after the site's interaction time.
type simWorld struct {
	mu       sync.Mutex
	reg      *registry.Memory
	workTime time.Duration
	clock    time.Duration
	// site id -> simulated time the work finishes
	finishAt map[string]time.Duration
	done     int
}

func (w *simWorld) AssignWork(workerID string, site core.WorkSite) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	worker, ok := w.reg.Worker(workerID)
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, registry.ErrNotFound)
	}
	worker.Location = site.Location
	worker.State = core.WorkerWorking
	w.reg.UpsertWorker(worker)

	d := w.workTime
	if site.InteractionDuration > 0 {
		d = time.Duration(site.InteractionDuration * float64(time.Second))
	}
	w.finishAt[site.ID] = w.clock + d
	return nil
}

func (w *simWorld) MoveWorkerTo(workerID string, location core.Position3D) error {
	worker, ok := w.reg.Worker(workerID)
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, registry.ErrNotFound)
	}
	worker.Location = location
	w.reg.UpsertWorker(worker)
	return nil
}

func (w *simWorld) AbortWorker(workerID string, _ core.AbortReason) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for siteID := range w.finishAt {
		if site, ok := w.reg.WorkSite(siteID); ok && site.ClaimedBy == workerID {
			delete(w.finishAt, siteID)
			_, _ = w.reg.Release(siteID, core.WorkAborted)
		}
	}
	return w.reg.SetWorkerState(workerID, core.WorkerIdle)
}

// advance completes every job whose time is up. Finished sites go offline.
func (w *simWorld) advance(delta time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock += delta

	ids := make([]string, 0, len(w.finishAt))
	for id, at := range w.finishAt {
		if at <= w.clock {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(w.finishAt, id)
		workerID, err := w.reg.Release(id, core.WorkCompleted)
		if err != nil {
			continue
		}
		if site, ok := w.reg.WorkSite(id); ok {
			site.Operational = false
			w.reg.UpsertWorkSite(site)
		}
		if workerID != "" {
			_ = w.reg.SetWorkerState(workerID, core.WorkerIdle)
		}
		w.done++
	}
}

// printingRecorder echoes loop events and forwards them to the session recorder.
type printingRecorder struct {
	out   io.Writer
	style styles
	clock func() time.Duration
	next  *handlers.Recorder

	assignments int
	transitions int
}

func (r *printingRecorder) RecordStateTransition(t *core.StateTransition) error {
	r.transitions++
	line := fmt.Sprintf("%-8s -> %-8s (%s)", t.From, t.To, t.Result)
	if t.Result == "Failed" || t.Result == "Aborted" {
		line = r.style.failed.Render(line)
	}
	fmt.Fprintf(r.out, "[%8s] %s\n", r.clock(), line)
	return r.next.RecordStateTransition(t)
}

func (r *printingRecorder) RecordAssignment(a *core.AssignmentEvent) error {
	r.assignments++
	line := fmt.Sprintf("assign %s -> %s (%s, %.1fm)", a.WorkerID, a.SiteID, a.TaskType, a.Distance)
	fmt.Fprintf(r.out, "[%8s] %s\n", r.clock(), r.style.assign.Render(line))
	return r.next.RecordAssignment(a)
}

func (r *printingRecorder) RecordStatusReport(rep *core.StatusReport) error {
	return r.next.RecordStatusReport(rep)
}

func runSim(sc *Scenario, opts simOptions) (simResult, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg := registry.NewMemory()
	world := &simWorld{reg: reg, workTime: sc.WorkTime, finishAt: make(map[string]time.Duration)}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, w := range sc.Workers {
		reg.UpsertWorker(core.Worker{
			ID:       w.ID,
			Name:     w.Name,
			Tags:     w.Tags,
			State:    core.WorkerIdle,
			Location: position(w.Position),
		})
	}
	for _, s := range sc.Sites {
		task, _ := parser.ParseTaskType(s.Task)
		reg.UpsertWorkSite(core.WorkSite{
			ID:                  s.ID,
			Name:                s.Name,
			TaskType:            task,
			Location:            position(s.Position),
			Operational:         !s.Offline,
			InteractionDuration: s.Interaction,
		})
	}

	sessionRec := handlers.NewRecorder(nil, nil)
	var backend *memory.Backend
	if opts.ExportDir != "" {
		backend = memory.New(config.MemoryConfig{OutputDir: opts.ExportDir})
		if err := backend.StartSession(&core.Session{ID: "sim", Name: "sim", StartTime: start, ExtensionVersion: version}); err != nil {
			return simResult{}, err
		}
		sessionRec.SetBackend(backend)
		sessionRec.SetActive(true)
	}

	type simAndroid struct {
		model   *condition.Model
		drainer *condition.Drainer
	}
	var androids []simAndroid
	for _, a := range sc.Androids {
		raw, err := json.Marshal(a.Capabilities)
		if err != nil {
			return simResult{}, err
		}
		caps, err := parser.ParseCapabilities(string(raw))
		if err != nil {
			return simResult{}, fmt.Errorf("android %s: %w", a.ID, err)
		}
		condOpts := []condition.Option{
			condition.WithPersonalitySeed(a.Seed),
			condition.WithClock(func() time.Time { return start.Add(world.clock) }),
		}
		if a.Power > 0 {
			condOpts = append(condOpts, condition.WithPowerLevel(a.Power))
		}
		if a.DrainRate > 0 {
			condOpts = append(condOpts, condition.WithDrainRate(a.DrainRate))
		}
		m := condition.New(a.ID, caps, condOpts...)
		m.OnPowerStateChanged(func(c core.PowerStateChange) {
			_ = sessionRec.RecordPowerChange(&c)
		})
		androids = append(androids, simAndroid{model: m, drainer: condition.NewDrainer(m)})
	}

	cfg := foreman.DefaultConfig()
	cfg.TriggerScan = false
	if sc.Foreman.CheckInterval > 0 {
		cfg.CheckInterval = sc.Foreman.CheckInterval
	}
	if sc.Foreman.WaitDuration > 0 {
		cfg.WaitDuration = sc.Foreman.WaitDuration
	}
	if sc.Foreman.RequireWork != nil {
		cfg.RequireWorkToPlan = *sc.Foreman.RequireWork
	}

	style := newStyles(opts.Out)
	rec := &printingRecorder{
		out:   opts.Out,
		style: style,
		clock: func() time.Duration { return world.clock },
		next:  sessionRec,
	}
	loop, err := foreman.NewLoop(cfg, foreman.Dependencies{
		ID:        "sim",
		Registry:  reg,
		Commander: world,
		Recorder:  rec,
		Logger:    opts.Logger,
	})
	if err != nil {
		return simResult{}, err
	}

	pawn := foreman.StaticPawn(position(sc.Foreman.Position))
	loop.BindPawn(pawn)
	loop.Start()

	for world.clock < sc.Duration {
		for _, a := range androids {
			a.drainer.Advance(sc.Step)
			if a.model.Readiness() == core.Disabled {
				if w, ok := reg.Worker(a.model.ID()); ok && w.State == core.WorkerIdle {
					_ = reg.SetWorkerState(w.ID, core.WorkerUnavailable)
					fmt.Fprintf(opts.Out, "[%8s] %s\n", world.clock, style.failed.Render(w.ID+" disabled"))
				}
			}
		}
		world.advance(sc.Step)
		loop.Tick(sc.Step)
	}

	report := loop.Survey().StatusReport(pawn.Location())
	report.ForemanID = loop.ID()
	if err := sessionRec.RecordStatusReport(&report); err != nil {
		return simResult{}, err
	}
	fmt.Fprintf(opts.Out, "[%8s] %s\n", world.clock, style.header.Render(report.String()))
	fmt.Fprintln(opts.Out, style.success.Render(fmt.Sprintf("completed %d of %d sites", world.done, len(sc.Sites))))

	res := simResult{
		Report:      report,
		Assignments: rec.assignments,
		Completed:   world.done,
		Transitions: rec.transitions,
	}
	if backend != nil {
		if err := backend.EndSession(); err != nil {
			return res, err
		}
		res.ExportPath = backend.GetExportedFilePath()
	}
	return res, nil
}
