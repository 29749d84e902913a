package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/ktgames/mining/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// GEO POINTS
// World positions are engine units with no reference system. They are stored
// as XYZ points in WKB so SQLite and Postgres columns scan the same way.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Vec3FromString parses "x,y,z", "x,y" or "[x,y,z]" into a vector.
func Vec3FromString(coords string) (core.Vec3, error) {
	coords = strings.TrimSpace(coords)
	coords = strings.TrimPrefix(coords, "[")
	coords = strings.TrimSuffix(coords, "]")

	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return core.Vec3{}, ErrInvalidCoordinates
	}

	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Vec3{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	return core.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// PointFromString parses coordinates like Vec3FromString and returns them as a point.
func PointFromString(coords string) (geom.Point, error) {
	v, err := Vec3FromString(coords)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ), err
	}
	return PointFromVec3(v), nil
}

// PointFromVec3 converts a world position to an XYZ point. A position with a
// non-finite X or Y gives an empty point.
func PointFromVec3(v core.Vec3) geom.Point {
	p, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v.X, Y: v.Y},
		Z:    v.Z,
		Type: geom.DimXYZ,
	}, geom.OmitInvalid)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ)
	}
	return p
}

// Vec3FromPoint converts a point back to a world position. Empty points give the origin.
func Vec3FromPoint(p geom.Point) core.Vec3 {
	c, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{X: c.X, Y: c.Y, Z: c.Z}
}
