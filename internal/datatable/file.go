package datatable

import (
	"fmt"

	"github.com/ktgames/mining/pkg/core"
	"github.com/spf13/viper"
)

// The file structs double as the source of the table file JSON schema.
type fileWeight struct {
	Type        string  `mapstructure:"type" json:"type" jsonschema:"required,enum=Gold,enum=Silver,enum=Copper,enum=Iron"`
	Probability float64 `mapstructure:"probability" json:"probability" jsonschema:"required,minimum=0,maximum=1"`
}

type fileSpot struct {
	Name        string         `mapstructure:"name" json:"name" jsonschema:"required,minLength=1"`
	Transform   core.Transform `mapstructure:"transform" json:"transform"`
	Percentages []fileWeight   `mapstructure:"percentages" json:"percentages" jsonschema:"required,minItems=1"`
	Seed        int64          `mapstructure:"seed" json:"seed,omitempty"`
}

type fileMesh struct {
	Type string `mapstructure:"type" json:"type" jsonschema:"required,enum=Gold,enum=Silver,enum=Copper,enum=Iron"`
	Mesh string `mapstructure:"mesh" json:"mesh" jsonschema:"required"`
}

type fileGroup struct {
	KeyMesh     string   `mapstructure:"keyMesh" json:"keyMesh" jsonschema:"required"`
	GroupMeshes []string `mapstructure:"groupMeshes" json:"groupMeshes,omitempty"`
	ChaosClass  string   `mapstructure:"chaosClass" json:"chaosClass,omitempty"`
}

type fileTables struct {
	Spots         []fileSpot  `json:"spots" jsonschema:"required"`
	MineralMeshes []fileMesh  `json:"mineralMeshes,omitempty"`
	MeshGroups    []fileGroup `json:"meshGroups,omitempty"`
}

// FileSource reads tables from a JSON, YAML or TOML file. It keeps its own
// viper instance so table keys never mix with the service configuration.
type FileSource struct {
	path string
	v    *viper.Viper
}

// OpenFile reads the table file at path.
func OpenFile(path string) (*FileSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading table file %s: %w", path, err)
	}
	return &FileSource{path: path, v: v}, nil
}

// Path returns the file the source was read from.
func (f *FileSource) Path() string {
	return f.path
}

// Spots returns the "spots" table.
func (f *FileSource) Spots() ([]SpotRow, error) {
	if !f.v.IsSet("spots") {
		return nil, fmt.Errorf("spots: %w", ErrNoTable)
	}
	var raw []fileSpot
	if err := f.v.UnmarshalKey("spots", &raw); err != nil {
		return nil, fmt.Errorf("decoding spots: %w", err)
	}

	rows := make([]SpotRow, 0, len(raw))
	for _, r := range raw {
		weights := make([]core.TypeWeight, 0, len(r.Percentages))
		for _, w := range r.Percentages {
			t, err := core.ParseMineralType(w.Type)
			if err != nil {
				return nil, fmt.Errorf("spot %s: %w", r.Name, err)
			}
			weights = append(weights, core.TypeWeight{Type: t, Probability: w.Probability})
		}
		rows = append(rows, SpotRow{
			Name:        r.Name,
			Transform:   r.Transform,
			Percentages: weights,
			Seed:        r.Seed,
		})
	}
	return rows, nil
}

// MineralMeshes returns the "mineralMeshes" table.
func (f *FileSource) MineralMeshes() (map[core.MineralType]string, error) {
	if !f.v.IsSet("mineralMeshes") {
		return nil, fmt.Errorf("mineralMeshes: %w", ErrNoTable)
	}
	var raw []fileMesh
	if err := f.v.UnmarshalKey("mineralMeshes", &raw); err != nil {
		return nil, fmt.Errorf("decoding mineralMeshes: %w", err)
	}

	out := make(map[core.MineralType]string, len(raw))
	for _, r := range raw {
		t, err := core.ParseMineralType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("mineral mesh %s: %w", r.Mesh, err)
		}
		out[t] = r.Mesh
	}
	return out, nil
}

// MeshGroups returns the "meshGroups" table.
func (f *FileSource) MeshGroups() ([]MeshGroupRow, error) {
	if !f.v.IsSet("meshGroups") {
		return nil, fmt.Errorf("meshGroups: %w", ErrNoTable)
	}
	var raw []fileGroup
	if err := f.v.UnmarshalKey("meshGroups", &raw); err != nil {
		return nil, fmt.Errorf("decoding meshGroups: %w", err)
	}

	rows := make([]MeshGroupRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, MeshGroupRow(r))
	}
	return rows, nil
}
