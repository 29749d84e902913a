package model

import (
	"database/sql"
	"time"

	"github.com/ktgames/mining/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists the recording tables.
var DatabaseModels = []any{
	&Session{},
	&SpotGeneration{},
	&Conversion{},
	&ProgressSample{},
	&Depletion{},
}

// TableModels lists the static configuration tables read by the lifecycle.
var TableModels = []any{
	&MineralSpotRow{},
	&MineralMeshRow{},
	&MeshGroupRow{},
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one run of the lifecycle service.
type Session struct {
	gorm.Model
	UUID             string       `json:"uuid" gorm:"size:36;uniqueIndex"`
	WorldName        string       `json:"worldName" gorm:"size:127"`
	StartTime        time.Time    `json:"startTime" gorm:"index:idx_session_start"`
	EndTime          sql.NullTime `json:"endTime"`
	Seed             int64        `json:"seed"`
	UseChaos         bool         `json:"useChaos"`
	ExtensionVersion string       `json:"extensionVersion" gorm:"size:64"`
	Tag              string       `json:"tag" gorm:"size:127"`

	SpotGenerations []SpotGeneration
	Conversions     []Conversion
	Depletions      []Depletion
}

func (*Session) TableName() string {
	return "sessions"
}

// SpotGeneration is a type draw for a spot.
type SpotGeneration struct {
	ID          uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time      `json:"time" gorm:"index:idx_spotgeneration_time"`
	SessionID   uint           `json:"sessionId" gorm:"index:idx_spotgeneration_session_id"`
	Session     Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SpotID      uint32         `json:"spotId" gorm:"index:idx_spotgeneration_spot_id"`
	SpotName    string         `json:"spotName" gorm:"size:127"`
	Generation  uint32         `json:"generation"`
	Seed        int64          `json:"seed"`
	RandomValue float64        `json:"randomValue"`
	MineralType string         `json:"mineralType" gorm:"size:32"`
	Fallback    bool           `json:"fallback"`
	Position    geom.Point     `json:"position"`
	Percentages datatypes.JSON `json:"percentages"`
}

func (*SpotGeneration) TableName() string {
	return "spot_generations"
}

// Conversion is an instance turning into a destructible representation.
type Conversion struct {
	ID           uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time  `json:"time" gorm:"index:idx_conversion_time"`
	SessionID    uint       `json:"sessionId" gorm:"index:idx_conversion_session_id"`
	Session      Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SpotID       uint32     `json:"spotId" gorm:"index:idx_conversion_spot_id"`
	Generation   uint32     `json:"generation"`
	Kind         string     `json:"kind" gorm:"size:16"`
	Instance     uint64     `json:"instance"`
	Destructible uint64     `json:"destructible"`
	Position     geom.Point `json:"position"`
}

func (*Conversion) TableName() string {
	return "conversions"
}

// ProgressSample is a partial destruction step.
type ProgressSample struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time `json:"time" gorm:"index:idx_progress_time"`
	SessionID   uint      `json:"sessionId" gorm:"index:idx_progress_session_id"`
	Session     Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SpotID      uint32    `json:"spotId"`
	Generation  uint32    `json:"generation"`
	Amount      float64   `json:"amount"`
	Accumulated float64   `json:"accumulated"`
	Total       float64   `json:"total"`
}

func (*ProgressSample) TableName() string {
	return "progress_samples"
}

// Depletion is a representation crossing its threshold.
type Depletion struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time `json:"time" gorm:"index:idx_depletion_time"`
	SessionID   uint      `json:"sessionId" gorm:"index:idx_depletion_session_id"`
	Session     Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	SpotID      uint32    `json:"spotId" gorm:"index:idx_depletion_spot_id"`
	Generation  uint32    `json:"generation"`
	Kind        string    `json:"kind" gorm:"size:16"`
	MineralType string    `json:"mineralType" gorm:"size:32"`
	Accumulated float64   `json:"accumulated"`
	Total       float64   `json:"total"`
	RespawnAt   time.Time `json:"respawnAt"`
}

func (*Depletion) TableName() string {
	return "depletions"
}

////////////////////////
// TABLE MODELS
////////////////////////

// MineralSpotRow is a configured spot.
type MineralSpotRow struct {
	ID          uint                                 `json:"id" gorm:"primarykey;autoIncrement;"`
	Name        string                               `json:"name" gorm:"size:127;uniqueIndex"`
	Transform   datatypes.JSONType[core.Transform]   `json:"transform"`
	Percentages datatypes.JSONSlice[core.TypeWeight] `json:"percentages"`
	Seed        int64                                `json:"seed"`
}

func (*MineralSpotRow) TableName() string {
	return "mineral_spots"
}

// MineralMeshRow maps a mineral type to its instanced mesh.
type MineralMeshRow struct {
	ID          uint   `json:"id" gorm:"primarykey;autoIncrement;"`
	MineralType string `json:"mineralType" gorm:"size:32;uniqueIndex"`
	Mesh        string `json:"mesh" gorm:"size:255"`
}

func (*MineralMeshRow) TableName() string {
	return "mineral_meshes"
}

// MeshGroupRow maps an instanced mesh to its destructible representations.
type MeshGroupRow struct {
	ID          uint                        `json:"id" gorm:"primarykey;autoIncrement;"`
	KeyMesh     string                      `json:"keyMesh" gorm:"size:255;uniqueIndex"`
	GroupMeshes datatypes.JSONSlice[string] `json:"groupMeshes"`
	ChaosClass  string                      `json:"chaosClass" gorm:"size:255"`
}

func (*MeshGroupRow) TableName() string {
	return "mesh_groups"
}
