// Package uuid generates entity IDs for leads, sources, and proposals.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

var _ lead.IDGenerator = Generator{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
