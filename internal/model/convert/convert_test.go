package convert

import (
	"database/sql"
	"testing"
	"time"

	"github.com/ktgames/mining/internal/model"
	"github.com/ktgames/mining/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func makePoint(t *testing.T, x, y, z float64) geom.Point {
	t.Helper()
	p, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}, Z: z, Type: geom.DimXYZ})
	require.NoError(t, err)
	return p
}

func TestPercentagesToJSON(t *testing.T) {
	data := percentagesToJSON([]core.TypeWeight{
		{Type: core.Gold, Probability: 0.25},
		{Type: core.Iron, Probability: 0.75},
	})
	assert.JSONEq(t, `[{"type":"Gold","probability":0.25},{"type":"Iron","probability":0.75}]`, string(data))

	assert.Equal(t, datatypes.JSON("[]"), percentagesToJSON(nil))
}

func TestJSONToPercentages(t *testing.T) {
	got := jsonToPercentages(datatypes.JSON(`[{"type":"silver","probability":1}]`))
	assert.Equal(t, []core.TypeWeight{{Type: core.Silver, Probability: 1}}, got)

	assert.Nil(t, jsonToPercentages(nil))
	assert.Nil(t, jsonToPercentages(datatypes.JSON(`{not json`)))
	assert.Nil(t, jsonToPercentages(datatypes.JSON(`[{"type":"Mithril","probability":1}]`)))
}

func TestSessionToCore(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := model.Session{
		UUID:      "6f1c",
		WorldName: "Valley",
		StartTime: start,
		EndTime:   sql.NullTime{Time: start.Add(time.Hour), Valid: true},
		Seed:      7,
		UseChaos:  true,
		Tag:       "nightly",
	}
	m.ID = 3

	s := SessionToCore(m)
	assert.Equal(t, uint(3), s.ID)
	assert.Equal(t, "Valley", s.WorldName)
	assert.Equal(t, start.Add(time.Hour), s.EndTime)
	assert.True(t, s.UseChaos)

	m.EndTime = sql.NullTime{}
	assert.True(t, SessionToCore(m).EndTime.IsZero())
}

func TestSpotGenerationToCore(t *testing.T) {
	m := model.SpotGeneration{
		ID:          9,
		SessionID:   1,
		SpotID:      4,
		SpotName:    "ridge-4",
		Generation:  2,
		Seed:        1234,
		RandomValue: 0.42,
		MineralType: "Copper",
		Position:    makePoint(t, 1, 2, 3),
		Percentages: datatypes.JSON(`[{"type":"Copper","probability":1}]`),
	}

	e := SpotGenerationToCore(m)
	assert.Equal(t, core.SpotID(4), e.SpotID)
	assert.Equal(t, core.Copper, e.MineralType)
	assert.Equal(t, core.Vec3{X: 1, Y: 2, Z: 3}, e.Position)
	require.Len(t, e.Percentages, 1)
	assert.Equal(t, core.Copper, e.Percentages[0].Type)
}

func TestConversionToCore(t *testing.T) {
	e := ConversionToCore(model.Conversion{
		SpotID:       2,
		Kind:         "chaos",
		Instance:     10,
		Destructible: 11,
		Position:     makePoint(t, 5, 5, 0),
	})
	assert.Equal(t, core.DestructibleChaos, e.Kind)
	assert.Equal(t, core.Handle(10), e.Instance)
	assert.Equal(t, core.Handle(11), e.Destructible)

	assert.Equal(t, core.DestructibleGroup, ConversionToCore(model.Conversion{Kind: "group"}).Kind)
	assert.Equal(t, core.Vec3{}, ConversionToCore(model.Conversion{}).Position, "empty point gives the origin")
}

func TestDepletionToCore(t *testing.T) {
	respawn := time.Date(2024, 5, 1, 12, 0, 13, 0, time.UTC)
	e := DepletionToCore(model.Depletion{
		SpotID:      1,
		Kind:        "group",
		MineralType: "Gold",
		Accumulated: 9,
		Total:       10,
		RespawnAt:   respawn,
	})
	assert.Equal(t, core.DestructibleGroup, e.Kind)
	assert.Equal(t, core.Gold, e.MineralType)
	assert.Equal(t, respawn, e.RespawnAt)

	assert.Equal(t, core.Gold, DepletionToCore(model.Depletion{MineralType: "Unobtainium"}).MineralType)
}

func TestProgressSampleToCore(t *testing.T) {
	e := ProgressSampleToCore(model.ProgressSample{SpotID: 6, Amount: 500, Accumulated: 900, Total: 1000})
	assert.Equal(t, core.SpotID(6), e.SpotID)
	assert.Equal(t, 900.0, e.Accumulated)
}
