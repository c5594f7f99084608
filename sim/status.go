package sim

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// StatusRecord is one per-step line of the status file.
type StatusRecord struct {
	Time   float64 `csv:"time"`
	NParts int     `csv:"nparts"`
	CircX  float64 `csv:"circ_x"`
	CircY  float64 `csv:"circ_y"`
	CircZ  float64 `csv:"circ_z"`
	ForceX float64 `csv:"force_x"`
	ForceY float64 `csv:"force_y"`
	ForceZ float64 `csv:"force_z"`
}

// StatusFile appends one CSV record per completed step. A nil
// StatusFile discards everything, so callers never check for one.
type StatusFile struct {
	f             *os.File
	headerWritten bool
}

// NewStatusFile creates (truncating) the status file at path. An empty
// path disables status output and returns nil.
func NewStatusFile(path string) (*StatusFile, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating status file: %w", err)
	}
	return &StatusFile{f: f}, nil
}

// Append writes one record, emitting the header on first use.
func (s *StatusFile) Append(rec StatusRecord) error {
	if s == nil {
		return nil
	}
	records := []StatusRecord{rec}
	if !s.headerWritten {
		if err := gocsv.Marshal(records, s.f); err != nil {
			return fmt.Errorf("writing status: %w", err)
		}
		s.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, s.f); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *StatusFile) Close() error {
	if s == nil || s.f == nil {
		return nil
	}
	return s.f.Close()
}
