// Package instance keeps the instanced representations of static meshes:
// one component per mesh, each holding the transforms of its instances.
package instance

import (
	"errors"
	"sync"

	"github.com/ktgames/mining/pkg/core"
)

// ErrNoMesh is returned when spawning without a mesh.
var ErrNoMesh = errors.New("instance: no mesh")

// Instance is one placed copy of a mesh.
type Instance struct {
	Handle    core.Handle
	Mesh      string
	Transform core.Transform
	Kind      core.InstancedType
}

type component struct {
	kind      core.InstancedType
	instances []core.Handle
}

// Manager owns every instanced component.
type Manager struct {
	mu         sync.RWMutex
	alloc      func() core.Handle
	next       core.Handle
	tolerance  float64
	components map[string]*component
	instances  map[core.Handle]Instance
}

// NewManager creates a manager. alloc hands out representation handles; when
// nil the manager numbers instances itself. tolerance is used by
// RemoveByTransform; non-positive selects core.DefaultTolerance.
func NewManager(alloc func() core.Handle, tolerance float64) *Manager {
	if tolerance <= 0 {
		tolerance = core.DefaultTolerance
	}
	m := &Manager{
		alloc:      alloc,
		tolerance:  tolerance,
		components: make(map[string]*component),
		instances:  make(map[core.Handle]Instance),
	}
	return m
}

// Spawn adds an instance of mesh at t, creating the mesh's component on first use.
func (m *Manager) Spawn(mesh string, t core.Transform, kind core.InstancedType) (core.Handle, error) {
	if mesh == "" {
		return 0, ErrNoMesh
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.components[mesh]
	if !ok {
		c = &component{}
		m.components[mesh] = c
	}
	c.kind = kind

	h := m.nextHandle()
	c.instances = append(c.instances, h)
	m.instances[h] = Instance{Handle: h, Mesh: mesh, Transform: t, Kind: kind}
	return h, nil
}

func (m *Manager) nextHandle() core.Handle {
	if m.alloc != nil {
		return m.alloc()
	}
	m.next++
	return m.next
}

// Remove deletes the instance h. It reports whether h existed.
func (m *Manager) Remove(h core.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(h)
}

func (m *Manager) removeLocked(h core.Handle) bool {
	inst, ok := m.instances[h]
	if !ok {
		return false
	}
	delete(m.instances, h)

	c := m.components[inst.Mesh]
	for i, other := range c.instances {
		if other == h {
			c.instances = append(c.instances[:i], c.instances[i+1:]...)
			break
		}
	}
	return true
}

// RemoveByTransform deletes the first instance of mesh whose transform equals t.
func (m *Manager) RemoveByTransform(mesh string, t core.Transform) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.components[mesh]
	if !ok {
		return false
	}
	for _, h := range c.instances {
		if m.instances[h].Transform.Equals(t, m.tolerance) {
			return m.removeLocked(h)
		}
	}
	return false
}

// Get returns the instance h.
func (m *Manager) Get(h core.Handle) (Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[h]
	return inst, ok
}

// Transform returns the transform of h, or the identity when h is unknown.
func (m *Manager) Transform(h core.Handle) (core.Transform, bool) {
	inst, ok := m.Get(h)
	if !ok {
		return core.IdentityTransform(), false
	}
	return inst.Transform, true
}

// Mesh returns the mesh h is an instance of.
func (m *Manager) Mesh(h core.Handle) (string, bool) {
	inst, ok := m.Get(h)
	return inst.Mesh, ok
}

// Count returns how many instances of mesh exist.
func (m *Manager) Count(mesh string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.components[mesh]
	if !ok {
		return 0
	}
	return len(c.instances)
}

// All returns every instance, grouped by mesh in spawn order.
func (m *Manager) All() []Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Instance, 0, len(m.instances))
	for _, c := range m.components {
		for _, h := range c.instances {
			out = append(out, m.instances[h])
		}
	}
	return out
}
