package convert

import (
	"encoding/json"

	"github.com/ktgames/mining/internal/geo"
	"github.com/ktgames/mining/internal/model"
	"github.com/ktgames/mining/pkg/core"
	"gorm.io/datatypes"
)

// jsonToPercentages decodes a stored probability table. Unknown type names
// and malformed JSON yield an empty table.
func jsonToPercentages(data datatypes.JSON) []core.TypeWeight {
	if len(data) == 0 {
		return nil
	}
	var out []core.TypeWeight
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// kindFromString maps a stored kind name back to core.DestructibleKind.
// Anything but "chaos" is a mesh group.
func kindFromString(s string) core.DestructibleKind {
	if s == core.DestructibleChaos.String() {
		return core.DestructibleChaos
	}
	return core.DestructibleGroup
}

// mineralFromString maps a stored type name back to core.MineralType.
// Unknown names fall back to the zero type.
func mineralFromString(s string) core.MineralType {
	t, err := core.ParseMineralType(s)
	if err != nil {
		return 0
	}
	return t
}

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(m model.Session) core.Session {
	s := core.Session{
		ID:               m.ID,
		UUID:             m.UUID,
		WorldName:        m.WorldName,
		StartTime:        m.StartTime,
		Seed:             m.Seed,
		UseChaos:         m.UseChaos,
		ExtensionVersion: m.ExtensionVersion,
		Tag:              m.Tag,
	}
	if m.EndTime.Valid {
		s.EndTime = m.EndTime.Time
	}
	return s
}

// SpotGenerationToCore converts a GORM model.SpotGeneration to a core.SpotGeneration.
func SpotGenerationToCore(m model.SpotGeneration) core.SpotGeneration {
	return core.SpotGeneration{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Time:        m.Time,
		SpotID:      core.SpotID(m.SpotID),
		SpotName:    m.SpotName,
		Generation:  m.Generation,
		Seed:        m.Seed,
		RandomValue: m.RandomValue,
		MineralType: mineralFromString(m.MineralType),
		Fallback:    m.Fallback,
		Position:    geo.Vec3FromPoint(m.Position),
		Percentages: jsonToPercentages(m.Percentages),
	}
}

// ConversionToCore converts a GORM model.Conversion to a core.ConversionEvent.
func ConversionToCore(m model.Conversion) core.ConversionEvent {
	return core.ConversionEvent{
		ID:           m.ID,
		SessionID:    m.SessionID,
		Time:         m.Time,
		SpotID:       core.SpotID(m.SpotID),
		Generation:   m.Generation,
		Kind:         kindFromString(m.Kind),
		Instance:     core.Handle(m.Instance),
		Destructible: core.Handle(m.Destructible),
		Position:     geo.Vec3FromPoint(m.Position),
	}
}

// ProgressSampleToCore converts a GORM model.ProgressSample to a core.ProgressEvent.
func ProgressSampleToCore(m model.ProgressSample) core.ProgressEvent {
	return core.ProgressEvent{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Time:        m.Time,
		SpotID:      core.SpotID(m.SpotID),
		Generation:  m.Generation,
		Amount:      m.Amount,
		Accumulated: m.Accumulated,
		Total:       m.Total,
	}
}

// DepletionToCore converts a GORM model.Depletion to a core.DepletionEvent.
func DepletionToCore(m model.Depletion) core.DepletionEvent {
	return core.DepletionEvent{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Time:        m.Time,
		SpotID:      core.SpotID(m.SpotID),
		Generation:  m.Generation,
		Kind:        kindFromString(m.Kind),
		MineralType: mineralFromString(m.MineralType),
		Accumulated: m.Accumulated,
		Total:       m.Total,
		RespawnAt:   m.RespawnAt,
	}
}
