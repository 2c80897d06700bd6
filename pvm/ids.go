package pvm

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces execution and history record ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator generates random (version 4) UUIDs. It is the default.
type UUIDGenerator struct{}

// NewID returns a new UUID string.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SequentialGenerator generates Prefix1, Prefix2, ... and is safe for
// concurrent use. Useful for deterministic ids in tests and demos.
type SequentialGenerator struct {
	Prefix string
	next   atomic.Int64
}

// NewSequentialGenerator creates a generator starting at 1.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{Prefix: prefix}
}

// NewID returns the next id.
func (g *SequentialGenerator) NewID() string {
	return g.Prefix + strconv.FormatInt(g.next.Add(1), 10)
}
