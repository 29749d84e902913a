package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ktgames/mining/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpotGenerationWireFormat(t *testing.T) {
	p := NewSpotGeneration(core.SpotGeneration{
		SpotID:      3,
		MineralType: core.Silver,
		Position:    core.Vec3{X: 1, Y: 2, Z: 3},
		Percentages: []core.TypeWeight{{Type: core.Silver, Probability: 1}},
	})

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Silver", raw["mineralType"])
	assert.Equal(t, []any{1.0, 2.0, 3.0}, raw["position"])
	assert.Equal(t, 3.0, raw["spotId"])
}

func TestDepletionKind(t *testing.T) {
	p := NewDepletion(core.DepletionEvent{Kind: core.DestructibleChaos, RespawnAt: time.Unix(10, 0)})
	assert.Equal(t, "chaos", p.Kind)
	assert.Equal(t, int64(10), p.RespawnAt.Unix())

	c := NewConversion(core.ConversionEvent{Kind: core.DestructibleGroup, Instance: 5, Destructible: 6})
	assert.Equal(t, "group", c.Kind)
	assert.Equal(t, uint64(5), c.Instance)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := json.Marshal(NewStartSession(core.Session{UUID: "u", WorldName: "w", Seed: 4}))
	require.NoError(t, err)
	data, err := json.Marshal(Envelope{Type: TypeStartSession, Payload: payload})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeStartSession, env.Type)

	var got StartSessionPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "w", got.WorldName)
	assert.Equal(t, int64(4), got.Seed)
}
