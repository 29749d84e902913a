// Package datatable reads the static configuration tables: the mineral
// spots, the mesh used for each mineral type and the destructible
// representation of each mesh.
package datatable

import (
	"errors"
	"fmt"
	"math"

	"github.com/ktgames/mining/pkg/core"
)

// ErrNoTable is returned when a table is absent from its source.
var ErrNoTable = errors.New("datatable: table missing")

// SpotRow is one configured mineral spot.
type SpotRow struct {
	Name        string
	Transform   core.Transform
	Percentages []core.TypeWeight
	Seed        int64
}

// MeshGroupRow maps an instanced mesh to the representations it converts into.
type MeshGroupRow struct {
	KeyMesh     string
	GroupMeshes []string
	ChaosClass  string
}

// Tables is the static configuration source.
type Tables interface {
	Spots() ([]SpotRow, error)
	MineralMeshes() (map[core.MineralType]string, error)
	MeshGroups() ([]MeshGroupRow, error)
}

// Issue is a problem found in a spot row.
type Issue struct {
	Spot    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Spot, i.Message)
}

// SumTolerance is how far a percentage table may stray from 1.
const SumTolerance = 1e-6

// Validate reports spot rows whose percentages cannot be drawn from as
// configured. Spots with issues still work; draws that run past the table
// resolve to the fallback type.
func Validate(spots []SpotRow) []Issue {
	var issues []Issue
	seen := make(map[string]bool, len(spots))

	for _, s := range spots {
		if s.Name == "" {
			issues = append(issues, Issue{Spot: "(unnamed)", Message: "spot has no name"})
		} else if seen[s.Name] {
			issues = append(issues, Issue{Spot: s.Name, Message: "duplicate spot name"})
		}
		seen[s.Name] = true

		if len(s.Percentages) == 0 {
			issues = append(issues, Issue{Spot: s.Name, Message: "empty percentage table"})
			continue
		}
		for _, w := range s.Percentages {
			if w.Probability < 0 {
				issues = append(issues, Issue{Spot: s.Name, Message: fmt.Sprintf("negative probability for %s", w.Type)})
			}
		}
		if sum := core.SumProbabilities(s.Percentages); math.Abs(sum-1) > SumTolerance {
			issues = append(issues, Issue{Spot: s.Name, Message: fmt.Sprintf("probabilities sum to %.4f", sum)})
		}
	}
	return issues
}
