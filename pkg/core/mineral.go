// pkg/core/mineral.go
package core

import (
	"fmt"
	"strings"
)

// MineralType identifies what a mineral spot yields.
type MineralType uint8

const (
	Gold MineralType = iota
	Silver
	Copper
	Iron
)

var mineralTypeNames = []string{
	Gold:   "Gold",
	Silver: "Silver",
	Copper: "Copper",
	Iron:   "Iron",
}

// String returns the table row name of the type, or "Unknown".
func (t MineralType) String() string {
	if int(t) < len(mineralTypeNames) {
		return mineralTypeNames[t]
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (t MineralType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *MineralType) UnmarshalText(b []byte) error {
	parsed, err := ParseMineralType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseMineralType resolves a case-insensitive type name.
func ParseMineralType(name string) (MineralType, error) {
	for i, n := range mineralTypeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return MineralType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mineral type %q", name)
}

// MineralTypes returns every known type in declaration order.
func MineralTypes() []MineralType {
	out := make([]MineralType, len(mineralTypeNames))
	for i := range mineralTypeNames {
		out[i] = MineralType(i)
	}
	return out
}

// TypeWeight is one entry of a spot's ordered probability table.
type TypeWeight struct {
	Type        MineralType `json:"type"`
	Probability float64     `json:"probability"`
}

// SumProbabilities returns the total weight of a probability table.
func SumProbabilities(weights []TypeWeight) float64 {
	var sum float64
	for _, w := range weights {
		sum += w.Probability
	}
	return sum
}

// SpotID is the stable identifier assigned to a spot when it is registered.
type SpotID uint32

// Handle identifies a representation created by the spawn service.
type Handle uint64

// MineralSpot is a configured location that can yield a destructible deposit.
type MineralSpot struct {
	ID          SpotID
	Name        string
	Transform   Transform
	Percentages []TypeWeight
	Seed        int64
	Generation  uint32
}

// SpotState is the lifecycle phase of a spot.
type SpotState uint8

const (
	SpotActive SpotState = iota
	SpotConverting
	SpotDepleted
	SpotRespawning
)

func (s SpotState) String() string {
	switch s {
	case SpotActive:
		return "active"
	case SpotConverting:
		return "converting"
	case SpotDepleted:
		return "depleted"
	case SpotRespawning:
		return "respawning"
	default:
		return "unknown"
	}
}

// InstancedType groups instanced meshes by purpose.
type InstancedType uint8

const (
	InstancedTrees InstancedType = iota
	InstancedMinerals
)

func (t InstancedType) String() string {
	if t == InstancedTrees {
		return "trees"
	}
	return "minerals"
}

// DestructibleKind selects which destructible representation replaces an instance.
type DestructibleKind uint8

const (
	DestructibleGroup DestructibleKind = iota
	DestructibleChaos
)

func (k DestructibleKind) String() string {
	if k == DestructibleChaos {
		return "chaos"
	}
	return "group"
}
