package foreman

import (
	"sort"
	"sync"
	"time"

	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/pkg/core"
)

// DefaultSurveyRadius is the radius used by CountNearbyWorkers when none is given.
const DefaultSurveyRadius = 500.0

// Survey answers census questions about the foreman's surroundings.
type Survey struct {
	reg    registry.Reader
	feed   PerceptionFeed
	radius float64
	now    func() time.Time

	mu           sync.Mutex
	patrolPoints []core.PatrolPoint
	patrolIndex  int
}

// NewSurvey creates a survey over reg. feed may be nil.
func NewSurvey(reg registry.Reader, feed PerceptionFeed, radius float64) *Survey {
	if radius <= 0 {
		radius = DefaultSurveyRadius
	}
	return &Survey{reg: reg, feed: feed, radius: radius, now: time.Now}
}

// Radius returns the default survey radius.
func (s *Survey) Radius() float64 {
	return s.radius
}

// CountNearbyWorkers counts workers within radius of origin.
// A non-positive radius uses the survey default.
func (s *Survey) CountNearbyWorkers(origin core.Position3D, radius float64) int {
	if radius <= 0 {
		radius = s.radius
	}
	n := 0
	for _, w := range s.reg.Workers() {
		if w.Location.DistanceTo(origin) <= radius {
			n++
		}
	}
	return n
}

// StatusReport takes a worker census around origin. Active counts every
// worker that is not idle.
func (s *Survey) StatusReport(origin core.Position3D) core.StatusReport {
	workers := s.reg.Workers()
	idle := 0
	nearby := 0
	for _, w := range workers {
		if w.State == core.WorkerIdle {
			idle++
		}
		if w.Location.DistanceTo(origin) <= s.radius {
			nearby++
		}
	}
	return core.StatusReport{
		Time:     s.now(),
		Total:    len(workers),
		Idle:     idle,
		Active:   len(workers) - idle,
		Nearby:   nearby,
		Location: origin,
	}
}

// SetPatrolPoints replaces the patrol route. Points are visited by descending
// priority, keeping the given order among equal priorities.
func (s *Survey) SetPatrolPoints(points []core.PatrolPoint) {
	sorted := append([]core.PatrolPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patrolPoints = sorted
	s.patrolIndex = 0
}

// NextPatrolPoint returns the next point on the route, wrapping round.
func (s *Survey) NextPatrolPoint() (core.PatrolPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.patrolPoints) == 0 {
		return core.PatrolPoint{}, false
	}
	p := s.patrolPoints[s.patrolIndex]
	s.patrolIndex = (s.patrolIndex + 1) % len(s.patrolPoints)
	return p, true
}

// DiscoverInteractables returns the perceived entities within radius of
// origin, nearest first.
func (s *Survey) DiscoverInteractables(origin core.Position3D, radius float64) []core.PerceivedEntity {
	if s.feed == nil {
		return nil
	}
	if radius <= 0 {
		radius = s.radius
	}
	var out []core.PerceivedEntity
	for _, e := range s.feed.KnownPerceived() {
		if e.Location.DistanceTo(origin) <= radius {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Location.DistanceTo(origin) < out[j].Location.DistanceTo(origin)
	})
	return out
}
