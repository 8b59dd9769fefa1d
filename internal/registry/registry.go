// Package registry holds the dispatcher's view of the world: known workers and
// work sites keyed by stable identifiers, with tags as a searchable attribute.
package registry

import (
	"errors"

	"github.com/wytcherly/foreman/pkg/core"
)

var (
	// ErrNotFound is returned when a worker or site ID is not registered.
	ErrNotFound = errors.New("not found")
	// ErrSiteClaimed is returned when a site is already held by another worker.
	ErrSiteClaimed = errors.New("site already claimed")
)

// Reader is the read side consumed by the planner, evaluator and survey.
// Results are point-in-time copies; two calls are not guaranteed consistent.
type Reader interface {
	// Workers lists workers in registry order, optionally filtered by state.
	Workers(states ...core.WorkerState) []core.Worker
	// WorkSites lists sites in registry order. With availableOnly set, only
	// unclaimed operational sites are returned.
	WorkSites(availableOnly bool) []core.WorkSite
	Worker(id string) (core.Worker, bool)
	WorkSite(id string) (core.WorkSite, bool)
	ClaimedCount() int
}

// Registry is the full registry used by the dispatch loop and host handlers.
type Registry interface {
	Reader

	UpsertWorker(w core.Worker) string
	UpsertWorkSite(s core.WorkSite) string
	RemoveWorker(id string) error
	RemoveWorkSite(id string) error

	// Claim marks site as held by worker. Claiming again with the same pair is a no-op.
	Claim(siteID, workerID string) error
	// Release clears the claim on a site and returns the worker that held it.
	Release(siteID string, reason core.WorkEndReason) (string, error)
	SetWorkerState(id string, state core.WorkerState) error

	// FindByTag returns the IDs of workers and sites carrying tag.
	FindByTag(tag string) (workerIDs, siteIDs []string)
}
