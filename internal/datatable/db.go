package datatable

import (
	"errors"
	"fmt"

	"github.com/ktgames/mining/internal/model"
	"github.com/ktgames/mining/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DBSource reads tables from the database.
type DBSource struct {
	db *gorm.DB
}

// NewDBSource creates a source reading through db.
func NewDBSource(db *gorm.DB) *DBSource {
	return &DBSource{db: db}
}

// Migrate creates the table schema.
func (s *DBSource) Migrate() error {
	if err := s.db.AutoMigrate(model.TableModels...); err != nil {
		return fmt.Errorf("migrating tables: %w", err)
	}
	return nil
}

func (s *DBSource) hasTable(m any) bool {
	return s.db.Migrator().HasTable(m)
}

// Spots returns every configured spot, ordered by ID.
func (s *DBSource) Spots() ([]SpotRow, error) {
	if !s.hasTable(&model.MineralSpotRow{}) {
		return nil, fmt.Errorf("mineral_spots: %w", ErrNoTable)
	}
	var raw []model.MineralSpotRow
	if err := s.db.Order("id").Find(&raw).Error; err != nil {
		return nil, fmt.Errorf("loading spots: %w", err)
	}

	rows := make([]SpotRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, SpotRow{
			Name:        r.Name,
			Transform:   r.Transform.Data(),
			Percentages: []core.TypeWeight(r.Percentages),
			Seed:        r.Seed,
		})
	}
	return rows, nil
}

// MineralMeshes returns the mesh of every mineral type.
func (s *DBSource) MineralMeshes() (map[core.MineralType]string, error) {
	if !s.hasTable(&model.MineralMeshRow{}) {
		return nil, fmt.Errorf("mineral_meshes: %w", ErrNoTable)
	}
	var raw []model.MineralMeshRow
	if err := s.db.Find(&raw).Error; err != nil {
		return nil, fmt.Errorf("loading mineral meshes: %w", err)
	}

	out := make(map[core.MineralType]string, len(raw))
	for _, r := range raw {
		t, err := core.ParseMineralType(r.MineralType)
		if err != nil {
			return nil, fmt.Errorf("mineral mesh %s: %w", r.Mesh, err)
		}
		out[t] = r.Mesh
	}
	return out, nil
}

// MeshGroups returns every mesh group, ordered by ID.
func (s *DBSource) MeshGroups() ([]MeshGroupRow, error) {
	if !s.hasTable(&model.MeshGroupRow{}) {
		return nil, fmt.Errorf("mesh_groups: %w", ErrNoTable)
	}
	var raw []model.MeshGroupRow
	if err := s.db.Order("id").Find(&raw).Error; err != nil {
		return nil, fmt.Errorf("loading mesh groups: %w", err)
	}

	rows := make([]MeshGroupRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, MeshGroupRow{
			KeyMesh:     r.KeyMesh,
			GroupMeshes: []string(r.GroupMeshes),
			ChaosClass:  r.ChaosClass,
		})
	}
	return rows, nil
}

// Seed copies every table of src into the database, replacing rows with the
// same key. Missing tables in src are skipped.
func (s *DBSource) Seed(src Tables) error {
	if err := s.Migrate(); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		spots, err := src.Spots()
		if err != nil && !errors.Is(err, ErrNoTable) {
			return err
		}
		for _, sp := range spots {
			row := model.MineralSpotRow{
				Name:        sp.Name,
				Transform:   datatypes.NewJSONType(sp.Transform),
				Percentages: datatypes.NewJSONSlice(sp.Percentages),
				Seed:        sp.Seed,
			}
			if err := tx.Where(model.MineralSpotRow{Name: sp.Name}).Assign(row).FirstOrCreate(&model.MineralSpotRow{}).Error; err != nil {
				return fmt.Errorf("seeding spot %s: %w", sp.Name, err)
			}
		}

		meshes, err := src.MineralMeshes()
		if err != nil && !errors.Is(err, ErrNoTable) {
			return err
		}
		for _, t := range core.MineralTypes() {
			mesh, ok := meshes[t]
			if !ok {
				continue
			}
			row := model.MineralMeshRow{MineralType: t.String(), Mesh: mesh}
			if err := tx.Where(model.MineralMeshRow{MineralType: t.String()}).Assign(row).FirstOrCreate(&model.MineralMeshRow{}).Error; err != nil {
				return fmt.Errorf("seeding mesh for %s: %w", t, err)
			}
		}

		groups, err := src.MeshGroups()
		if err != nil && !errors.Is(err, ErrNoTable) {
			return err
		}
		for _, g := range groups {
			row := model.MeshGroupRow{
				KeyMesh:     g.KeyMesh,
				GroupMeshes: datatypes.NewJSONSlice(g.GroupMeshes),
				ChaosClass:  g.ChaosClass,
			}
			if err := tx.Where(model.MeshGroupRow{KeyMesh: g.KeyMesh}).Assign(row).FirstOrCreate(&model.MeshGroupRow{}).Error; err != nil {
				return fmt.Errorf("seeding group %s: %w", g.KeyMesh, err)
			}
		}
		return nil
	})
}
