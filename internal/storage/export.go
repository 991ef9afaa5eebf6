package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/deformsim/internal/sim"
)

type ExportData struct {
	RunMetadata
	Samples []sim.Sample `json:"samples"`
}

// Export writes an archived run with all of its samples as indented JSON.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	samples, err := s.LoadFrames(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{RunMetadata: *meta, Samples: samples})
}
