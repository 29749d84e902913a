// Package streaming defines the wire messages of the session streaming protocol.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/ktgames/mining/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession   = "start_session"
	TypeEndSession     = "end_session"
	TypeSpotGeneration = "spot_generation"
	TypeConversion     = "conversion"
	TypeProgress       = "progress"
	TypeDepletion      = "depletion"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload describes the session being streamed.
type StartSessionPayload struct {
	UUID             string    `json:"uuid"`
	WorldName        string    `json:"worldName"`
	StartTime        time.Time `json:"startTime"`
	Seed             int64     `json:"seed"`
	UseChaos         bool      `json:"useChaos"`
	ExtensionVersion string    `json:"extensionVersion"`
	Tag              string    `json:"tag"`
}

// SpotGenerationPayload is a type draw.
type SpotGenerationPayload struct {
	Time        time.Time         `json:"time"`
	SpotID      uint32            `json:"spotId"`
	SpotName    string            `json:"spotName"`
	Generation  uint32            `json:"generation"`
	Seed        int64             `json:"seed"`
	RandomValue float64           `json:"randomValue"`
	MineralType core.MineralType  `json:"mineralType"`
	Fallback    bool              `json:"fallback"`
	Position    [3]float64        `json:"position"`
	Percentages []core.TypeWeight `json:"percentages"`
}

// ConversionPayload is an instance replaced by a destructible representation.
type ConversionPayload struct {
	Time         time.Time  `json:"time"`
	SpotID       uint32     `json:"spotId"`
	Generation   uint32     `json:"generation"`
	Kind         string     `json:"kind"`
	Instance     uint64     `json:"instance"`
	Destructible uint64     `json:"destructible"`
	Position     [3]float64 `json:"position"`
}

// ProgressPayload is a partial destruction step.
type ProgressPayload struct {
	Time        time.Time `json:"time"`
	SpotID      uint32    `json:"spotId"`
	Generation  uint32    `json:"generation"`
	Amount      float64   `json:"amount"`
	Accumulated float64   `json:"accumulated"`
	Total       float64   `json:"total"`
}

// DepletionPayload is a representation crossing its threshold.
type DepletionPayload struct {
	Time        time.Time        `json:"time"`
	SpotID      uint32           `json:"spotId"`
	Generation  uint32           `json:"generation"`
	Kind        string           `json:"kind"`
	MineralType core.MineralType `json:"mineralType"`
	Accumulated float64          `json:"accumulated"`
	Total       float64          `json:"total"`
	RespawnAt   time.Time        `json:"respawnAt"`
}

func vec(v core.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// NewStartSession builds the start_session payload.
func NewStartSession(s core.Session) StartSessionPayload {
	return StartSessionPayload{
		UUID:             s.UUID,
		WorldName:        s.WorldName,
		StartTime:        s.StartTime,
		Seed:             s.Seed,
		UseChaos:         s.UseChaos,
		ExtensionVersion: s.ExtensionVersion,
		Tag:              s.Tag,
	}
}

// NewSpotGeneration builds the spot_generation payload.
func NewSpotGeneration(e core.SpotGeneration) SpotGenerationPayload {
	return SpotGenerationPayload{
		Time:        e.Time,
		SpotID:      uint32(e.SpotID),
		SpotName:    e.SpotName,
		Generation:  e.Generation,
		Seed:        e.Seed,
		RandomValue: e.RandomValue,
		MineralType: e.MineralType,
		Fallback:    e.Fallback,
		Position:    vec(e.Position),
		Percentages: e.Percentages,
	}
}

// NewConversion builds the conversion payload.
func NewConversion(e core.ConversionEvent) ConversionPayload {
	return ConversionPayload{
		Time:         e.Time,
		SpotID:       uint32(e.SpotID),
		Generation:   e.Generation,
		Kind:         e.Kind.String(),
		Instance:     uint64(e.Instance),
		Destructible: uint64(e.Destructible),
		Position:     vec(e.Position),
	}
}

// NewProgress builds the progress payload.
func NewProgress(e core.ProgressEvent) ProgressPayload {
	return ProgressPayload{
		Time:        e.Time,
		SpotID:      uint32(e.SpotID),
		Generation:  e.Generation,
		Amount:      e.Amount,
		Accumulated: e.Accumulated,
		Total:       e.Total,
	}
}

// NewDepletion builds the depletion payload.
func NewDepletion(e core.DepletionEvent) DepletionPayload {
	return DepletionPayload{
		Time:        e.Time,
		SpotID:      uint32(e.SpotID),
		Generation:  e.Generation,
		Kind:        e.Kind.String(),
		MineralType: e.MineralType,
		Accumulated: e.Accumulated,
		Total:       e.Total,
		RespawnAt:   e.RespawnAt,
	}
}
