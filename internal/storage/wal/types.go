package wal

import (
	"encoding/json"
)

// ============================================================================
// WAL Type Definitions
// Responsibility: Define core data structures for WAL
// ============================================================================

// EventType names the store mutation an event records.
type EventType string

const (
	EventSiteSaved      EventType = "SITE_SAVED"
	EventSiteDeleted    EventType = "SITE_DELETED"
	EventFilterSaved    EventType = "FILTER_SAVED"
	EventIndexSaved     EventType = "INDEX_SAVED"     // filter watermark moved
	EventItemSaved      EventType = "ITEM_SAVED"      // replication history entry
	EventConfigSaved    EventType = "CONFIG_SAVED"
	EventConfigAdvanced EventType = "CONFIG_ADVANCED" // config watermark moved
)

// Event is one journal record.
type Event struct {
	Seq       uint64          `json:"seq"`       // monotonically increasing, never reused
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`   // JSON of the mutated entity
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Checksum  uint32          `json:"checksum"`  // CRC32 of seq, type and payload
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler applies a replayed event to the recovering state.
type EventHandler func(event Event) error
