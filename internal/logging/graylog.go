package logging

import (
	"fmt"
	"io"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogWriter opens a GELF UDP writer to addr. Every Write becomes one
// GELF message.
func NewGraylogWriter(addr, facility string) (io.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create graylog writer: %w", err)
	}
	w.Facility = facility
	return w, nil
}
