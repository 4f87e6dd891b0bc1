// Package entities holds the core records of the memory map: memories,
// ordered snapshots of them, in-progress drafts and rendered markers.
package entities

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"memorymap-backend/domain/core/valueobjects"
)

// NoAddressLabel is shown in place of a blank address.
const NoAddressLabel = "Location Not Found"

// Record field names shared by every remote collection adapter.
const (
	FieldID          = "id"
	FieldDescription = "description"
	FieldDate        = "date"
	FieldLat         = "lat"
	FieldLng         = "lng"
	FieldAddress     = "address"
	FieldTimestamp   = "timestamp"
)

// Record is the flat field map exchanged with a remote collection.
type Record map[string]any

// Memory is one geotagged note.
type Memory struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Address     string  `json:"address"`
	Timestamp   int64   `json:"timestamp"`
}

// HasLocation reports whether the memory can be placed on a map.
func (m Memory) HasLocation() bool {
	return valueobjects.HasCoordinates(m.Lat, m.Lng)
}

// DisplayAddress returns the address or NoAddressLabel when it is blank.
func (m Memory) DisplayAddress() string {
	if strings.TrimSpace(m.Address) == "" {
		return NoAddressLabel
	}
	return m.Address
}

// ToRecord converts the memory to its wire representation.
func (m Memory) ToRecord() Record {
	return Record{
		FieldID:          m.ID,
		FieldDescription: m.Description,
		FieldDate:        m.Date,
		FieldLat:         m.Lat,
		FieldLng:         m.Lng,
		FieldAddress:     m.Address,
		FieldTimestamp:   m.Timestamp,
	}
}

// MemoryFromRecord decodes a remote record. Unknown fields are ignored and
// missing or mistyped fields decode to their zero value. fallbackID is used
// when the record carries no id of its own (collections keyed by id).
func MemoryFromRecord(fallbackID string, r Record) Memory {
	m := Memory{
		ID:          stringField(r, FieldID),
		Description: stringField(r, FieldDescription),
		Date:        stringField(r, FieldDate),
		Lat:         floatField(r, FieldLat),
		Lng:         floatField(r, FieldLng),
		Address:     stringField(r, FieldAddress),
		Timestamp:   intField(r, FieldTimestamp),
	}
	if m.ID == "" {
		m.ID = fallbackID
	}
	return m
}

func stringField(r Record, key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

func floatField(r Record, key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func intField(r Record, key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(math.Round(v))
	case float32:
		return int64(math.Round(float64(v)))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return int64(math.Round(f))
	case string:
		i, _ := strconv.ParseInt(v, 10, 64)
		return i
	}
	return 0
}
