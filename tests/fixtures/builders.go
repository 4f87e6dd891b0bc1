// Package fixtures provides builders for test data.
package fixtures

import (
	"github.com/google/uuid"

	"memorymap-backend/domain/core/entities"
)

// MemoryBuilder helps create test memories with default values
type MemoryBuilder struct {
	memory entities.Memory
}

func NewMemoryBuilder() *MemoryBuilder {
	return &MemoryBuilder{
		memory: entities.Memory{
			ID:          uuid.New().String(),
			Description: "Test memory",
			Date:        "10/05/2023",
			Lat:         41.0082,
			Lng:         28.9784,
			Address:     "Fatih, Istanbul",
			Timestamp:   1683700000000,
		},
	}
}

func (b *MemoryBuilder) WithID(id string) *MemoryBuilder {
	b.memory.ID = id
	return b
}

func (b *MemoryBuilder) WithDescription(description string) *MemoryBuilder {
	b.memory.Description = description
	return b
}

func (b *MemoryBuilder) WithDate(date string) *MemoryBuilder {
	b.memory.Date = date
	return b
}

func (b *MemoryBuilder) WithLocation(lat, lng float64) *MemoryBuilder {
	b.memory.Lat, b.memory.Lng = lat, lng
	return b
}

func (b *MemoryBuilder) WithoutLocation() *MemoryBuilder {
	return b.WithLocation(0, 0)
}

func (b *MemoryBuilder) WithAddress(address string) *MemoryBuilder {
	b.memory.Address = address
	return b
}

func (b *MemoryBuilder) WithTimestamp(ts int64) *MemoryBuilder {
	b.memory.Timestamp = ts
	return b
}

func (b *MemoryBuilder) Build() entities.Memory {
	return b.memory
}

// Snapshot builds an ordered snapshot from the given memories.
func Snapshot(memories ...entities.Memory) entities.Snapshot {
	return entities.NewSnapshot(memories)
}

// Records converts memories to their remote record form.
func Records(memories ...entities.Memory) []entities.Record {
	out := make([]entities.Record, 0, len(memories))
	for _, m := range memories {
		out = append(out, m.ToRecord())
	}
	return out
}
