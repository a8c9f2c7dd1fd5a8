// Package uuid provides session id generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

// Generator creates time-ordered UUID v7 session ids.
type Generator struct{}

var _ crawler.IDGenerator = Generator{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewSessionID returns a UUID7 in binary form.
func (Generator) NewSessionID() ([16]byte, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return [16]byte{}, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// NewID returns a UUID7 string.
func (g Generator) NewID() (string, error) {
	id, err := g.NewSessionID()
	if err != nil {
		return "", err
	}
	return uuid.UUID(id).String(), nil
}
