// Package parser converts raw command arguments into core events.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ktgames/mining/internal/clock"
	"github.com/ktgames/mining/internal/geo"
	"github.com/ktgames/mining/internal/session"
	"github.com/ktgames/mining/internal/util"
	"github.com/ktgames/mining/pkg/core"
)

// ErrInvalidArgs is returned when a command carries the wrong number of arguments.
var ErrInvalidArgs = errors.New("invalid arguments")

// hitFields is the number of arguments describing one sweep hit:
// handle, mesh index, impact point, impact normal.
const hitFields = 4

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Game scripts have no integer type, so callers may serialize numbers as floats.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// parseIntFromFloat parses a string that may be an integer or float into int64.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// Parser provides pure []string -> core event conversion.
// Events are stamped with the parser's clock.
type Parser struct {
	logger *slog.Logger
	clock  clock.Clock
}

// NewParser creates a parser. A nil clock reads the wall clock.
func NewParser(logger *slog.Logger, c clock.Clock) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = clock.System{}
	}
	return &Parser{logger: logger, clock: c}
}

func expectArgs(data []string, n int) ([]string, error) {
	if len(data) < n {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrInvalidArgs, n, len(data))
	}
	return util.CleanArgs(data), nil
}

func parseHandle(s string) (core.Handle, error) {
	v, err := parseUintFromFloat(s)
	if err != nil {
		return 0, fmt.Errorf("error converting handle to uint: %w", err)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: handle must be non-zero", ErrInvalidArgs)
	}
	return core.Handle(v), nil
}

// parseQuat parses "[x,y,z,w]".
func parseQuat(s string) (core.Quat, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Quat{}, fmt.Errorf("%w: rotation needs 4 components", ErrInvalidArgs)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return core.Quat{}, fmt.Errorf("error parsing rotation: %w", err)
		}
		vals[i] = v
	}
	return core.Quat{X: vals[0], Y: vals[1], Z: vals[2], W: vals[3]}, nil
}

// ParseInstanceHit parses [handle] into an instanced mesh hit.
func (p *Parser) ParseInstanceHit(data []string) (core.InstanceHitEvent, error) {
	var ev core.InstanceHitEvent

	data, err := expectArgs(data, 1)
	if err != nil {
		return ev, err
	}

	ev.Instance, err = parseHandle(data[0])
	if err != nil {
		return ev, err
	}
	ev.Time = p.clock.Now()
	return ev, nil
}

// ParseHits parses one or more [handle, mesh, impact, normal] groups.
// A mesh index of -1 means the hit was not on a group member.
func (p *Parser) ParseHits(data []string) ([]core.HitResult, error) {
	if len(data) == 0 || len(data)%hitFields != 0 {
		return nil, fmt.Errorf("%w: hits come in groups of %d, got %d args", ErrInvalidArgs, hitFields, len(data))
	}
	data = util.CleanArgs(data)

	hits := make([]core.HitResult, 0, len(data)/hitFields)
	for i := 0; i < len(data); i += hitFields {
		handle, err := parseHandle(data[i])
		if err != nil {
			return nil, fmt.Errorf("hit %d: %w", i/hitFields, err)
		}
		mesh, err := parseIntFromFloat(data[i+1])
		if err != nil {
			return nil, fmt.Errorf("hit %d: error converting mesh index: %w", i/hitFields, err)
		}
		impact, err := geo.Vec3FromString(data[i+2])
		if err != nil {
			return nil, fmt.Errorf("hit %d: impact point: %w", i/hitFields, err)
		}
		normal, err := geo.Vec3FromString(data[i+3])
		if err != nil {
			return nil, fmt.Errorf("hit %d: impact normal: %w", i/hitFields, err)
		}
		hits = append(hits, core.HitResult{
			Handle:       handle,
			Mesh:         int(mesh),
			ImpactPoint:  impact,
			ImpactNormal: normal,
		})
	}
	return hits, nil
}

// ParseRemoval parses [handle, mass].
func (p *Parser) ParseRemoval(data []string) (core.RemovalEvent, error) {
	var ev core.RemovalEvent

	data, err := expectArgs(data, 2)
	if err != nil {
		return ev, err
	}

	ev.Handle, err = parseHandle(data[0])
	if err != nil {
		return ev, err
	}
	ev.Mass, err = strconv.ParseFloat(data[1], 64)
	if err != nil {
		return ev, fmt.Errorf("error converting mass to float: %w", err)
	}
	if math.IsNaN(ev.Mass) || math.IsInf(ev.Mass, 0) {
		return ev, fmt.Errorf("mass must be finite, got %s", data[1])
	}
	ev.Time = p.clock.Now()
	return ev, nil
}

// ParseConvertAt parses [location] with optional [rotation] and [scale].
func (p *Parser) ParseConvertAt(data []string) (core.ConvertAtEvent, error) {
	var ev core.ConvertAtEvent

	data, err := expectArgs(data, 1)
	if err != nil {
		return ev, err
	}

	loc, err := geo.Vec3FromString(data[0])
	if err != nil {
		return ev, fmt.Errorf("location: %w", err)
	}
	ev.Transform = core.At(loc)

	if len(data) > 1 && data[1] != "" {
		ev.Transform.Rotation, err = parseQuat(data[1])
		if err != nil {
			return ev, err
		}
	}
	if len(data) > 2 && data[2] != "" {
		ev.Transform.Scale, err = geo.Vec3FromString(data[2])
		if err != nil {
			return ev, fmt.Errorf("scale: %w", err)
		}
	}
	ev.Time = p.clock.Now()
	return ev, nil
}

// ParseViewpoint parses [location, direction].
func (p *Parser) ParseViewpoint(data []string) (core.Viewpoint, error) {
	var view core.Viewpoint

	data, err := expectArgs(data, 2)
	if err != nil {
		return view, err
	}

	view.Location, err = geo.Vec3FromString(data[0])
	if err != nil {
		return view, fmt.Errorf("location: %w", err)
	}
	view.Direction, err = geo.Vec3FromString(data[1])
	if err != nil {
		return view, fmt.Errorf("direction: %w", err)
	}
	if view.Direction == (core.Vec3{}) {
		return view, fmt.Errorf("%w: direction must be non-zero", ErrInvalidArgs)
	}
	return view, nil
}

// ParseSessionStart parses [worldName, tag?, seed?, useChaos?]. Missing values
// fall back to defaults.
func (p *Parser) ParseSessionStart(data []string, defaults session.Options) (session.Options, error) {
	opts := defaults
	data = util.CleanArgs(data)

	if len(data) > 0 && data[0] != "" {
		opts.WorldName = data[0]
	}
	if len(data) > 1 && data[1] != "" {
		opts.Tag = data[1]
	}
	if len(data) > 2 && data[2] != "" {
		seed, err := parseIntFromFloat(data[2])
		if err != nil {
			return opts, fmt.Errorf("error converting seed to int: %w", err)
		}
		opts.Seed = seed
	}
	if len(data) > 3 && data[3] != "" {
		useChaos, err := strconv.ParseBool(data[3])
		if err != nil {
			return opts, fmt.Errorf("error converting useChaos to bool: %w", err)
		}
		opts.UseChaos = useChaos
	}

	p.logger.Debug("Parsed session start",
		"worldName", opts.WorldName,
		"tag", opts.Tag,
		"seed", opts.Seed)
	return opts, nil
}
