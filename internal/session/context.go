// Package session holds the session currently being recorded.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ktgames/mining/pkg/core"
)

// NoWorld is the world name reported before a session starts.
const NoWorld = "No world loaded"

// Context holds the current session.
type Context struct {
	mu      sync.RWMutex
	session core.Session
	active  bool
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{session: core.Session{WorldName: NoWorld}}
}

// Options describe a session about to start.
type Options struct {
	WorldName        string
	Seed             int64
	UseChaos         bool
	ExtensionVersion string
	Tag              string
}

// Begin starts a new session at now with a fresh UUID and returns it.
func (c *Context) Begin(opts Options, now time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = core.Session{
		UUID:             uuid.NewString(),
		WorldName:        opts.WorldName,
		StartTime:        now,
		Seed:             opts.Seed,
		UseChaos:         opts.UseChaos,
		ExtensionVersion: opts.ExtensionVersion,
		Tag:              opts.Tag,
	}
	c.active = true
	return c.session
}

// SetID stores the ID a storage backend assigned to the session.
func (c *Context) SetID(id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ID = id
}

// End stamps the end time. It reports false when no session is active.
func (c *Context) End(now time.Time) (core.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return c.session, false
	}
	c.session.EndTime = now
	c.active = false
	return c.session, true
}

// Get returns the current session.
func (c *Context) Get() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Active reports whether a session is running.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}
