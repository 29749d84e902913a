package world

import (
	"testing"

	"github.com/ktgames/mining/internal/actor"
	"github.com/ktgames/mining/internal/interaction"
	"github.com/ktgames/mining/internal/lifecycle"
	"github.com/ktgames/mining/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ lifecycle.Spawner  = (*World)(nil)
	_ actor.Physics      = (*World)(nil)
	_ interaction.Tracer = (*World)(nil)
)

func TestWorld_InstanceRoundTrip(t *testing.T) {
	w := New(Config{}, nil)
	at := core.At(core.Vec3{X: 100})

	h, err := w.SpawnInstance("SM_Gold", at, core.InstancedMinerals)
	require.NoError(t, err)

	mesh, ok := w.InstanceMesh(h)
	require.True(t, ok)
	assert.Equal(t, "SM_Gold", mesh)
	assert.True(t, w.Exists(h))

	assert.True(t, w.RemoveInstance(h))
	assert.False(t, w.Exists(h))
}

func TestWorld_HandlesAreUnique(t *testing.T) {
	w := New(Config{}, nil)

	a, _ := w.SpawnInstance("SM_Gold", core.IdentityTransform(), core.InstancedMinerals)
	b, _, _ := w.SpawnChaos("BP_Rock", core.IdentityTransform())
	c, _ := w.SpawnGroup([]string{"a"}, core.IdentityTransform())
	d, _ := w.SpawnField("BP_Anchor", core.IdentityTransform())

	assert.ElementsMatch(t, []core.Handle{1, 2, 3, 4}, []core.Handle{a, b, c, d})
}

func TestWorld_ChaosMass(t *testing.T) {
	w := New(Config{ChaosMass: map[string]float64{"BP_Rock": 250}}, nil)

	_, mass, err := w.SpawnChaos("BP_Rock", core.IdentityTransform())
	require.NoError(t, err)
	assert.Equal(t, 250.0, mass)

	_, mass, _ = w.SpawnChaos("BP_Other", core.IdentityTransform())
	assert.Equal(t, DefaultChaosMass, mass)

	_, _, err = w.SpawnChaos("", core.IdentityTransform())
	assert.ErrorIs(t, err, ErrNoClass)
}

func TestWorld_EmptyGroup(t *testing.T) {
	w := New(Config{}, nil)
	_, err := w.SpawnGroup(nil, core.IdentityTransform())
	assert.ErrorIs(t, err, ErrNoMeshes)
}

func TestWorld_LineTraceHitsClosestInstance(t *testing.T) {
	w := New(Config{MeshRadius: 10}, nil)
	near, _ := w.SpawnInstance("SM_Gold", core.At(core.Vec3{X: 100}), core.InstancedMinerals)
	w.SpawnInstance("SM_Gold", core.At(core.Vec3{X: 300}), core.InstancedMinerals)

	hit, ok := w.LineTrace(core.Vec3{}, core.Vec3{X: 1000})
	require.True(t, ok)
	assert.Equal(t, near, hit.Handle)
	assert.True(t, hit.Instanced)
	assert.InDelta(t, 90, hit.ImpactPoint.X, 1e-9)
	assert.InDelta(t, -1, hit.ImpactNormal.X, 1e-9)

	_, ok = w.LineTrace(core.Vec3{}, core.Vec3{X: 50})
	assert.False(t, ok, "trace too short")

	_, ok = w.LineTrace(core.Vec3{}, core.Vec3{Y: 1000})
	assert.False(t, ok, "wrong direction")
}

func TestWorld_SphereSweepFindsGroupMeshes(t *testing.T) {
	w := New(Config{MeshRadius: 10}, nil)
	h, _ := w.SpawnGroup([]string{"a", "b", "c"}, core.At(core.Vec3{X: 100}))

	hits := w.SphereSweep(core.Vec3{X: 100}, 20)
	require.Len(t, hits, 3)
	for _, hit := range hits {
		assert.Equal(t, h, hit.Handle)
	}

	w.RemoveMesh(h, 1)
	assert.Len(t, w.SphereSweep(core.Vec3{X: 100}, 20), 2)

	w.DestroyRepresentation(h)
	assert.Empty(t, w.SphereSweep(core.Vec3{X: 100}, 20))
}

func TestWorld_EffectsAndDamage(t *testing.T) {
	w := New(Config{}, nil)
	w.SpawnEmitterAndSound(core.Vec3{})
	w.ApplyRadialDamage(core.Vec3{X: 1}, 3000, 500)

	st := w.Stats()
	assert.Equal(t, 1, st.Effects)
	assert.Equal(t, 1, st.Damage)
	assert.Equal(t, []Damage{{Origin: core.Vec3{X: 1}, Amount: 3000, Radius: 500}}, w.Damage())
}
