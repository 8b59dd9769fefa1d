package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wytcherly/foreman/pkg/core"
)

// ParsePatrolPoints parses a JSON array of waypoints.
// Input format: "[[x,y,z],[x,y,z,priority],...]"
func ParsePatrolPoints(input string) ([]core.PatrolPoint, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse patrol JSON: %w", err)
	}

	points := make([]core.PatrolPoint, len(coords))
	for i, coord := range coords {
		if len(coord) < 3 {
			return nil, fmt.Errorf("waypoint %d has insufficient values", i)
		}
		points[i] = core.PatrolPoint{
			Location: core.Position3D{X: coord[0], Y: coord[1], Z: coord[2]},
			Label:    fmt.Sprintf("waypoint-%d", i),
		}
		if len(coord) > 3 {
			points[i].Priority = int(coord[3])
		}
	}
	return points, nil
}

// PatrolRoute builds a 2D line string through the waypoints in order.
func PatrolRoute(points []core.PatrolPoint) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("route must have at least 2 points, got %d", len(points))
	}
	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flatCoords = append(flatCoords, p.Location.X, p.Location.Y)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("build patrol route: %w", err)
	}
	return ls, nil
}
