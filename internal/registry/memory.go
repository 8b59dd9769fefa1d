package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wytcherly/foreman/pkg/core"
)

// Memory is an in-process Registry. Iteration follows insertion order.
type Memory struct {
	mu sync.RWMutex

	workers     map[string]*core.Worker
	workerOrder []string
	sites       map[string]*core.WorkSite
	siteOrder   []string
	tags        map[string]map[string]struct{}
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		workers: make(map[string]*core.Worker),
		sites:   make(map[string]*core.WorkSite),
		tags:    make(map[string]map[string]struct{}),
	}
}

// UpsertWorker inserts or replaces a worker. An empty ID gets a generated one.
func (r *Memory) UpsertWorker(w core.Worker) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	w.Tags = append([]string(nil), w.Tags...)
	if w.Capabilities != nil {
		w.Capabilities = w.Capabilities.Clone()
	}

	if old, ok := r.workers[w.ID]; ok {
		r.untagLocked(old.ID, old.Tags)
	} else {
		r.workerOrder = append(r.workerOrder, w.ID)
	}
	r.workers[w.ID] = &w
	r.tagLocked(w.ID, w.Tags)
	return w.ID
}

// UpsertWorkSite inserts or replaces a site. An existing claim is preserved.
func (r *Memory) UpsertWorkSite(s core.WorkSite) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Tags = append([]string(nil), s.Tags...)

	if old, ok := r.sites[s.ID]; ok {
		r.untagLocked(old.ID, old.Tags)
		if s.ClaimedBy == "" {
			s.ClaimedBy = old.ClaimedBy
		}
	} else {
		r.siteOrder = append(r.siteOrder, s.ID)
	}
	r.sites[s.ID] = &s
	r.tagLocked(s.ID, s.Tags)
	return s.ID
}

// RemoveWorker deletes a worker and releases any site it held.
func (r *Memory) RemoveWorker(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	r.untagLocked(id, w.Tags)
	delete(r.workers, id)
	r.workerOrder = removeID(r.workerOrder, id)

	for _, s := range r.sites {
		if s.ClaimedBy == id {
			s.ClaimedBy = ""
		}
	}
	return nil
}

// RemoveWorkSite deletes a site.
func (r *Memory) RemoveWorkSite(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sites[id]
	if !ok {
		return fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	r.untagLocked(id, s.Tags)
	delete(r.sites, id)
	r.siteOrder = removeID(r.siteOrder, id)
	return nil
}

func (r *Memory) Workers(states ...core.WorkerState) []core.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Worker, 0, len(r.workerOrder))
	for _, id := range r.workerOrder {
		w := r.workers[id]
		if len(states) > 0 && !hasState(states, w.State) {
			continue
		}
		out = append(out, copyWorker(w))
	}
	return out
}

func (r *Memory) WorkSites(availableOnly bool) []core.WorkSite {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.WorkSite, 0, len(r.siteOrder))
	for _, id := range r.siteOrder {
		s := r.sites[id]
		if availableOnly && !s.Available() {
			continue
		}
		out = append(out, copySite(s))
	}
	return out
}

func (r *Memory) Worker(id string) (core.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return core.Worker{}, false
	}
	return copyWorker(w), true
}

func (r *Memory) WorkSite(id string) (core.WorkSite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[id]
	if !ok {
		return core.WorkSite{}, false
	}
	return copySite(s), true
}

// ClaimedCount returns the number of sites currently held by a worker.
func (r *Memory) ClaimedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sites {
		if s.Claimed() {
			n++
		}
	}
	return n
}

func (r *Memory) Claim(siteID, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sites[siteID]
	if !ok {
		return fmt.Errorf("site %s: %w", siteID, ErrNotFound)
	}
	if _, ok := r.workers[workerID]; !ok {
		return fmt.Errorf("worker %s: %w", workerID, ErrNotFound)
	}
	switch s.ClaimedBy {
	case workerID:
		return nil
	case "":
		s.ClaimedBy = workerID
		return nil
	default:
		return fmt.Errorf("site %s held by %s: %w", siteID, s.ClaimedBy, ErrSiteClaimed)
	}
}

func (r *Memory) Release(siteID string, reason core.WorkEndReason) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sites[siteID]
	if !ok {
		return "", fmt.Errorf("site %s: %w", siteID, ErrNotFound)
	}
	holder := s.ClaimedBy
	s.ClaimedBy = ""

	// a failed site stops being offered until the host re-registers it
	if reason == core.WorkFailed {
		s.Operational = false
	}
	return holder, nil
}

func (r *Memory) SetWorkerState(id string, state core.WorkerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	w.State = state
	return nil
}

func (r *Memory) FindByTag(tag string) (workerIDs, siteIDs []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.tags[tag]
	for _, id := range r.workerOrder {
		if _, ok := ids[id]; ok {
			workerIDs = append(workerIDs, id)
		}
	}
	for _, id := range r.siteOrder {
		if _, ok := ids[id]; ok {
			siteIDs = append(siteIDs, id)
		}
	}
	return workerIDs, siteIDs
}

func (r *Memory) tagLocked(id string, tags []string) {
	for _, t := range tags {
		set, ok := r.tags[t]
		if !ok {
			set = make(map[string]struct{})
			r.tags[t] = set
		}
		set[id] = struct{}{}
	}
}

func (r *Memory) untagLocked(id string, tags []string) {
	for _, t := range tags {
		if set, ok := r.tags[t]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.tags, t)
			}
		}
	}
}

func hasState(states []core.WorkerState, s core.WorkerState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func copyWorker(w *core.Worker) core.Worker {
	c := *w
	c.Tags = append([]string(nil), w.Tags...)
	if w.Capabilities != nil {
		c.Capabilities = w.Capabilities.Clone()
	}
	return c
}

func copySite(s *core.WorkSite) core.WorkSite {
	c := *s
	c.Tags = append([]string(nil), s.Tags...)
	return c
}
