// pkg/core/session.go
package core

import "time"

// Session is one run of the mining service against a world.
type Session struct {
	ID               uint
	UUID             string
	WorldName        string
	StartTime        time.Time
	EndTime          time.Time
	Seed             int64
	UseChaos         bool
	ExtensionVersion string
	Tag              string
}

// UploadMetadata contains session information needed for report upload.
type UploadMetadata struct {
	WorldName       string
	SessionUUID     string
	SessionDuration float64
	Tag             string
}

// SessionHistory is everything recorded for one session, in recording order.
type SessionHistory struct {
	Session     Session
	Generations []SpotGeneration
	Conversions []ConversionEvent
	Progress    []ProgressEvent
	Depletions  []DepletionEvent
}
