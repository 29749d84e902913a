// pkg/core/events.go
package core

import (
	"time"
)

// InstanceHitEvent reports that a trace hit an instanced mineral representation.
type InstanceHitEvent struct {
	Instance Handle
	Time     time.Time
}

// HitResult is one hit from a sphere sweep around an impact point.
// Mesh is the index of the hit mesh inside a group representation, or -1.
type HitResult struct {
	Handle       Handle
	Mesh         int
	ImpactPoint  Vec3
	ImpactNormal Vec3
}

// HitResultsEvent carries every hit of one sweep, in trace order.
type HitResultsEvent struct {
	Hits []HitResult
	Time time.Time
}

// RemovalEvent reports mass removed from a fracturing representation.
type RemovalEvent struct {
	Handle Handle
	Mass   float64
	Time   time.Time
}

// ConvertAtEvent asks for conversion of whatever spot sits at a pose.
type ConvertAtEvent struct {
	Transform Transform
	Time      time.Time
}

// Viewpoint is the origin and facing of a trace.
type Viewpoint struct {
	Location  Vec3
	Direction Vec3
}

// SpotGeneration records a type draw for a spot, initial or after respawn.
type SpotGeneration struct {
	ID          uint
	SessionID   uint
	Time        time.Time
	SpotID      SpotID
	SpotName    string
	Generation  uint32
	Seed        int64
	RandomValue float64
	MineralType MineralType
	Fallback    bool
	Position    Vec3
	Percentages []TypeWeight
}

// ConversionEvent records an instance being replaced by a destructible representation.
type ConversionEvent struct {
	ID           uint
	SessionID    uint
	Time         time.Time
	SpotID       SpotID
	Generation   uint32
	Kind         DestructibleKind
	Instance     Handle
	Destructible Handle
	Position     Vec3
}

// ProgressEvent records partial destruction of a representation.
type ProgressEvent struct {
	ID          uint
	SessionID   uint
	Time        time.Time
	SpotID      SpotID
	Generation  uint32
	Amount      float64
	Accumulated float64
	Total       float64
}

// DepletionEvent records a representation crossing its depletion threshold.
type DepletionEvent struct {
	ID          uint
	SessionID   uint
	Time        time.Time
	SpotID      SpotID
	Generation  uint32
	Kind        DestructibleKind
	MineralType MineralType
	Accumulated float64
	Total       float64
	RespawnAt   time.Time
}
