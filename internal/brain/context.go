package brain

import (
	"encoding/json"
	"math"

	"github.com/wytcherly/foreman/pkg/core"
)

type visibleEntry struct {
	Tag      string     `json:"tag"`
	Distance float64    `json:"distance"`
	Position [3]float64 `json:"position"`
}

type perceptionContext struct {
	Command          string         `json:"command"`
	CurrentlyVisible []visibleEntry `json:"currently_visible"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// BuildContext renders what the foreman currently sees as the JSON context
// sent alongside a snapshot. Known entities carrying the priority tag are
// included even when not currently visible.
func BuildContext(command string, origin core.Position3D, visible, known []core.PerceivedEntity, priorityTag string) string {
	seen := make(map[string]bool, len(visible))
	entities := make([]core.PerceivedEntity, 0, len(visible))
	for _, e := range visible {
		seen[entityKey(e)] = true
		entities = append(entities, e)
	}
	if priorityTag != "" {
		for _, e := range known {
			if !seen[entityKey(e)] && e.HasTag(priorityTag) {
				seen[entityKey(e)] = true
				entities = append(entities, e)
			}
		}
	}

	pc := perceptionContext{Command: command, CurrentlyVisible: make([]visibleEntry, 0, len(entities))}
	for _, e := range entities {
		pos := e.Location.Array()
		pc.CurrentlyVisible = append(pc.CurrentlyVisible, visibleEntry{
			Tag:      e.Label(priorityTag),
			Distance: round1(origin.DistanceTo(e.Location)),
			Position: [3]float64{round1(pos[0]), round1(pos[1]), round1(pos[2])},
		})
	}

	b, err := json.Marshal(pc)
	if err != nil {
		// Only plain strings and floats are marshalled.
		return `{"command":"","currently_visible":[]}`
	}
	return string(b)
}

func entityKey(e core.PerceivedEntity) string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}
