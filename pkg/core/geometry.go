// pkg/core/geometry.go
package core

import (
	"fmt"
	"math"
)

// Position3D is a world-space location in engine units (centimetres).
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the Euclidean distance between two positions.
func (p Position3D) DistanceTo(o Position3D) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// IsZero reports whether the position is the world origin.
func (p Position3D) IsZero() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0
}

// Array returns the position as [x, y, z].
func (p Position3D) Array() [3]float64 {
	return [3]float64{p.X, p.Y, p.Z}
}

func (p Position3D) String() string {
	return fmt.Sprintf("X=%.1f Y=%.1f Z=%.1f", p.X, p.Y, p.Z)
}
