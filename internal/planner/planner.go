// Package planner pairs idle workers with available work sites.
package planner

import (
	"sort"

	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/pkg/core"
)

// Candidate is a site scored by its distance from the planning origin.
type Candidate struct {
	Site     core.WorkSite
	Distance float64
}

// Planner performs one greedy worker/site match per call.
type Planner struct {
	reg registry.Reader
}

// New creates a planner reading from reg.
func New(reg registry.Reader) *Planner {
	return &Planner{reg: reg}
}

// Plan selects the available site nearest to origin and the first idle worker
// in registry order. Distance is measured from origin (the foreman), not from
// the worker. Ties go to the site encountered first.
func (p *Planner) Plan(origin core.Position3D) (core.Assignment, bool) {
	sites := p.reg.WorkSites(true)
	if len(sites) == 0 {
		return core.Assignment{}, false
	}

	best := -1
	bestDist := 0.0
	for i, s := range sites {
		d := origin.DistanceTo(s.Location)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	idle := p.reg.Workers(core.WorkerIdle)
	if len(idle) == 0 {
		return core.Assignment{}, false
	}

	site := sites[best]
	return core.Assignment{
		WorkerID: idle[0].ID,
		SiteID:   site.ID,
		TaskType: site.TaskType,
		Target:   site.Location,
		Distance: bestDist,
	}, true
}

// Candidates returns every available site ordered by distance from origin.
func (p *Planner) Candidates(origin core.Position3D) []Candidate {
	sites := p.reg.WorkSites(true)
	out := make([]Candidate, len(sites))
	for i, s := range sites {
		out[i] = Candidate{Site: s, Distance: origin.DistanceTo(s.Location)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}
