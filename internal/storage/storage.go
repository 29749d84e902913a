// Package storage defines where lifecycle history goes.
package storage

import "github.com/ktgames/mining/pkg/core"

// Backend is the interface all storage implementations must satisfy.
// It satisfies lifecycle.Recorder.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (assigns ID to the passed pointer)
	StartSession(s *core.Session) error
	EndSession() error

	// Lifecycle history
	RecordSpotGeneration(e *core.SpotGeneration) error
	RecordConversion(e *core.ConversionEvent) error
	RecordProgress(e *core.ProgressEvent) error
	RecordDepletion(e *core.DepletionEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// report files suitable for upload to the web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
