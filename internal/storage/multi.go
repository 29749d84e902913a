package storage

import (
	"errors"

	"github.com/ktgames/mining/pkg/core"
)

// Multi fans every call out to several backends. Errors from all of them
// are joined; one failing backend does not stop the others.
type Multi struct {
	backends []Backend
}

// NewMulti combines backends. Nil entries are skipped.
func NewMulti(backends ...Backend) *Multi {
	m := &Multi{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

// Backends returns the wrapped backends.
func (m *Multi) Backends() []Backend {
	return m.backends
}

func (m *Multi) each(fn func(Backend) error) error {
	var errs []error
	for _, b := range m.backends {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Init() error  { return m.each(Backend.Init) }
func (m *Multi) Close() error { return m.each(Backend.Close) }

// StartSession starts the session on every backend. Each backend gets its
// own copy so IDs assigned by one do not leak into another; the first
// non-zero ID is written back to s.
func (m *Multi) StartSession(s *core.Session) error {
	var id uint
	err := m.each(func(b Backend) error {
		cp := *s
		err := b.StartSession(&cp)
		if id == 0 {
			id = cp.ID
		}
		return err
	})
	s.ID = id
	return err
}

func (m *Multi) EndSession() error { return m.each(Backend.EndSession) }

func (m *Multi) RecordSpotGeneration(e *core.SpotGeneration) error {
	return m.each(func(b Backend) error {
		cp := *e
		return b.RecordSpotGeneration(&cp)
	})
}

func (m *Multi) RecordConversion(e *core.ConversionEvent) error {
	return m.each(func(b Backend) error {
		cp := *e
		return b.RecordConversion(&cp)
	})
}

func (m *Multi) RecordProgress(e *core.ProgressEvent) error {
	return m.each(func(b Backend) error {
		cp := *e
		return b.RecordProgress(&cp)
	})
}

func (m *Multi) RecordDepletion(e *core.DepletionEvent) error {
	return m.each(func(b Backend) error {
		cp := *e
		return b.RecordDepletion(&cp)
	})
}

// Uploadables returns the wrapped backends that produce report files.
func (m *Multi) Uploadables() []Uploadable {
	var out []Uploadable
	for _, b := range m.backends {
		if u, ok := b.(Uploadable); ok {
			out = append(out, u)
		}
	}
	return out
}
