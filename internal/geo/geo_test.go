package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/ktgames/mining/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

func TestVec3FromString_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want core.Vec3
	}{
		{"100.5,200.25,50", core.Vec3{X: 100.5, Y: 200.25, Z: 50}},
		{"1,2", core.Vec3{X: 1, Y: 2}},
		{"[1, 2, 3]", core.Vec3{X: 1, Y: 2, Z: 3}},
		{" -4,0.5,7 ", core.Vec3{X: -4, Y: 0.5, Z: 7}},
	}

	for _, tt := range tests {
		got, err := Vec3FromString(tt.in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestVec3FromString_Invalid(t *testing.T) {
	for _, in := range []string{"", "1", "1,2,3,4", "a,b", "1,2,c", "NaN,0,0", "1,Inf,2", "1,2,-Inf"} {
		_, err := Vec3FromString(in)
		if !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%q: expected ErrInvalidCoordinates, got %v", in, err)
		}
	}
}

func TestPointFromString(t *testing.T) {
	point, err := PointFromString("1,2,3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if coords.X != 1 || coords.Y != 2 || coords.Z != 3 {
		t.Errorf("unexpected coordinates %+v", coords)
	}

	empty, err := PointFromString("bad")
	if err == nil {
		t.Fatal("expected error")
	}
	if !empty.IsEmpty() {
		t.Error("expected empty point")
	}
}

func TestPointVec3RoundTrip(t *testing.T) {
	v := core.Vec3{X: 12.5, Y: -3, Z: 700}
	if got := Vec3FromPoint(PointFromVec3(v)); got != v {
		t.Errorf("expected %v, got %v", v, got)
	}
}

func TestPointFromVec3_NonFinite(t *testing.T) {
	p := PointFromVec3(core.Vec3{X: math.NaN(), Y: 1, Z: 2})
	if !p.IsEmpty() {
		t.Errorf("expected empty point, got %v", p)
	}
	if got := Vec3FromPoint(p); got != (core.Vec3{}) {
		t.Errorf("expected origin, got %v", got)
	}
}

func TestVec3FromPoint_Empty(t *testing.T) {
	if got := Vec3FromPoint(geom.NewEmptyPoint(geom.DimXYZ)); got != (core.Vec3{}) {
		t.Errorf("expected origin, got %v", got)
	}
}
