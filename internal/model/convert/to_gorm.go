// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/ktgames/mining/internal/geo"
	"github.com/ktgames/mining/internal/model"
	"github.com/ktgames/mining/pkg/core"
	"gorm.io/datatypes"
)

// percentagesToJSON converts a probability table to datatypes.JSON for DB storage.
func percentagesToJSON(p []core.TypeWeight) datatypes.JSON {
	if len(p) == 0 {
		return datatypes.JSON("[]")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// A zero EndTime is stored as NULL.
func CoreToSession(s core.Session) model.Session {
	m := model.Session{
		UUID:             s.UUID,
		WorldName:        s.WorldName,
		StartTime:        s.StartTime,
		Seed:             s.Seed,
		UseChaos:         s.UseChaos,
		ExtensionVersion: s.ExtensionVersion,
		Tag:              s.Tag,
	}
	m.ID = s.ID
	if !s.EndTime.IsZero() {
		m.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return m
}

// CoreToSpotGeneration converts a core.SpotGeneration to a GORM model.SpotGeneration.
func CoreToSpotGeneration(e core.SpotGeneration) model.SpotGeneration {
	return model.SpotGeneration{
		ID:          e.ID,
		Time:        e.Time,
		SessionID:   e.SessionID,
		SpotID:      uint32(e.SpotID),
		SpotName:    e.SpotName,
		Generation:  e.Generation,
		Seed:        e.Seed,
		RandomValue: e.RandomValue,
		MineralType: e.MineralType.String(),
		Fallback:    e.Fallback,
		Position:    geo.PointFromVec3(e.Position),
		Percentages: percentagesToJSON(e.Percentages),
	}
}

// CoreToConversion converts a core.ConversionEvent to a GORM model.Conversion.
func CoreToConversion(e core.ConversionEvent) model.Conversion {
	return model.Conversion{
		ID:           e.ID,
		Time:         e.Time,
		SessionID:    e.SessionID,
		SpotID:       uint32(e.SpotID),
		Generation:   e.Generation,
		Kind:         e.Kind.String(),
		Instance:     uint64(e.Instance),
		Destructible: uint64(e.Destructible),
		Position:     geo.PointFromVec3(e.Position),
	}
}

// CoreToProgressSample converts a core.ProgressEvent to a GORM model.ProgressSample.
func CoreToProgressSample(e core.ProgressEvent) model.ProgressSample {
	return model.ProgressSample{
		ID:          e.ID,
		Time:        e.Time,
		SessionID:   e.SessionID,
		SpotID:      uint32(e.SpotID),
		Generation:  e.Generation,
		Amount:      e.Amount,
		Accumulated: e.Accumulated,
		Total:       e.Total,
	}
}

// CoreToDepletion converts a core.DepletionEvent to a GORM model.Depletion.
func CoreToDepletion(e core.DepletionEvent) model.Depletion {
	return model.Depletion{
		ID:          e.ID,
		Time:        e.Time,
		SessionID:   e.SessionID,
		SpotID:      uint32(e.SpotID),
		Generation:  e.Generation,
		Kind:        e.Kind.String(),
		MineralType: e.MineralType.String(),
		Accumulated: e.Accumulated,
		Total:       e.Total,
		RespawnAt:   e.RespawnAt,
	}
}
