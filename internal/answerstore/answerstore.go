// Package answerstore looks up the answer content published for a mapping URI.
package answerstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no answer unit is mapped to a URI.
var ErrNotFound = errors.New("answer unit not found")

// Store resolves mapping URIs to answer units.
type Store interface {
	AnswerUnit(ctx context.Context, mappingURI string) (*AnswerUnit, error)
}

// AnswerUnit is one published answer and the mapping URIs that lead to it.
type AnswerUnit struct {
	AnswerUnitID          string        `json:"answerUnitID"`
	Content               Content       `json:"content"`
	EvidenceURL           string        `json:"evidenceURL,omitempty"`
	IndexInSourceDocument int           `json:"indexInSourceDocument,omitempty"`
	MappingInfo           []MappingInfo `json:"mappingInfo"`
	Metadata              []Metadata    `json:"metadata,omitempty"`
	SourceDocument        string        `json:"SourceDocument,omitempty"`
}

type Content struct {
	ContentID string   `json:"contentID,omitempty"`
	Hashcode  string   `json:"hashcode,omitempty"`
	PlainText string   `json:"plainText"`
	Title     []string `json:"title"`
	Type      string   `json:"type,omitempty"`
	HTMLText  string   `json:"htmlText,omitempty"`
}

// MappingInfo ties an answer unit to the intent and entity values of a URI.
type MappingInfo struct {
	Comment         string          `json:"comment,omitempty"`
	GetMappingURI   string          `json:"getMappingURI,omitempty"`
	MappingURI      string          `json:"mappingURI"`
	Intent          string          `json:"intent"`
	MappingEntities []MappingEntity `json:"mappingEntities,omitempty"`
	Status          string          `json:"status,omitempty"`
	ValidatedBy     string          `json:"validatedBy,omitempty"`
	ValidatedOn     string          `json:"validatedOn,omitempty"`
}

type MappingEntity struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Metadata struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Title joins the title lines of the unit.
func (u *AnswerUnit) Title() string {
	return strings.Join(u.Content.Title, " ")
}

// MapsTo reports whether one of the unit's mappings has the URI.
func (u *AnswerUnit) MapsTo(mappingURI string) bool {
	for _, m := range u.MappingInfo {
		if m.MappingURI == mappingURI {
			return true
		}
	}
	return false
}
