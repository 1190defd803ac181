package answerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// FileStore serves answer units decoded from a JSON array.
type FileStore struct {
	units []*AnswerUnit
}

// NewFileStore wraps units already in memory.
func NewFileStore(units []*AnswerUnit) *FileStore {
	return &FileStore{units: units}
}

// LoadFile reads a JSON array of answer units.
func LoadFile(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open answer store file: %w", err)
	}
	defer f.Close()

	units, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return NewFileStore(units), nil
}

// Decode reads a JSON array of answer units.
func Decode(r io.Reader) ([]*AnswerUnit, error) {
	var units []*AnswerUnit
	if err := json.NewDecoder(r).Decode(&units); err != nil {
		return nil, fmt.Errorf("failed to decode answer units: %w", err)
	}
	return units, nil
}

// Units returns every unit of the store in file order.
func (s *FileStore) Units() []*AnswerUnit {
	return s.units
}

// AnswerUnit returns the first unit mapped to the URI.
func (s *FileStore) AnswerUnit(_ context.Context, mappingURI string) (*AnswerUnit, error) {
	for _, u := range s.units {
		if u.MapsTo(mappingURI) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, mappingURI)
}
