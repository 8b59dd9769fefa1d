package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wytcherly/foreman/pkg/core"
)

// GEO POINTS
// Engine positions are stored as untransformed XYZ points. SQLite has no
// spatial awareness, so the WKB encoding is what lets both drivers round-trip
// the column through geom.Point's Scan/Value.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Position3DFromString parses "x,y" or "x,y,z" into a core.Position3D.
// Surrounding brackets, as produced by engine array formatting, are ignored.
func Position3DFromString(coords string) (core.Position3D, error) {
	coords = strings.Trim(strings.TrimSpace(coords), "[]")
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	var vals [3]float64
	for i, s := range coordsSplit {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Position3D{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	return core.Position3D{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// PointFromPosition converts an engine position into an XYZ point.
// Non-finite coordinates are rejected.
func PointFromPosition(p core.Position3D) (geom.Point, error) {
	if math.IsNaN(p.Z) || math.IsInf(p.Z, 0) {
		return geom.Point{}, fmt.Errorf("point from %+v: %w", p, ErrInvalidCoordinates)
	}
	pt, err := geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.X, Y: p.Y},
			Z:    p.Z,
			Type: geom.CoordinatesType(geom.DimXYZ),
		},
	)
	if err != nil {
		return geom.Point{}, fmt.Errorf("point from %+v: %w", p, err)
	}
	return pt, nil
}

// PositionFromPoint is the inverse of PointFromPosition. An empty point
// yields the zero position.
func PositionFromPoint(pt geom.Point) core.Position3D {
	c, ok := pt.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: c.X, Y: c.Y, Z: c.Z}
}
