package foreman

import (
	"sync"

	"github.com/wytcherly/foreman/pkg/core"
)

type assignCall struct {
	WorkerID string
	SiteID   string
}

type moveCall struct {
	WorkerID string
	Location core.Position3D
}

type abortCall struct {
	WorkerID string
	Reason   core.AbortReason
}

type fakeCommander struct {
	mu        sync.Mutex
	assignErr error
	assigns   []assignCall
	moves     []moveCall
	aborts    []abortCall
}

func (c *fakeCommander) AssignWork(workerID string, site core.WorkSite) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.assignErr != nil {
		return c.assignErr
	}
	c.assigns = append(c.assigns, assignCall{WorkerID: workerID, SiteID: site.ID})
	return nil
}

func (c *fakeCommander) MoveWorkerTo(workerID string, location core.Position3D) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves = append(c.moves, moveCall{WorkerID: workerID, Location: location})
	return nil
}

func (c *fakeCommander) AbortWorker(workerID string, reason core.AbortReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborts = append(c.aborts, abortCall{WorkerID: workerID, Reason: reason})
	return nil
}

type fakePresenter struct {
	played  []string
	stopped int
}

func (p *fakePresenter) PlayCue(name string) { p.played = append(p.played, name) }
func (p *fakePresenter) StopCue()            { p.stopped++ }

type fakeScanner struct {
	commands []string
}

func (s *fakeScanner) IssueCommand(text string) { s.commands = append(s.commands, text) }

type fakeRecorder struct {
	transitions []core.StateTransition
	assignments []core.AssignmentEvent
	reports     []core.StatusReport
}

func (r *fakeRecorder) RecordStateTransition(t *core.StateTransition) error {
	r.transitions = append(r.transitions, *t)
	return nil
}

func (r *fakeRecorder) RecordAssignment(a *core.AssignmentEvent) error {
	r.assignments = append(r.assignments, *a)
	return nil
}

func (r *fakeRecorder) RecordStatusReport(rep *core.StatusReport) error {
	r.reports = append(r.reports, *rep)
	return nil
}

// path returns the recorded transitions as "From>To" strings.
func (r *fakeRecorder) path() []string {
	out := make([]string, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.From+">"+t.To)
	}
	return out
}

type fakeFeed struct {
	visible []core.PerceivedEntity
	known   []core.PerceivedEntity
}

func (f *fakeFeed) CurrentlyPerceived() []core.PerceivedEntity { return f.visible }
func (f *fakeFeed) KnownPerceived() []core.PerceivedEntity     { return f.known }
