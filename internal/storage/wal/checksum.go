package wal

// ============================================================================
// Checksums
// CRC32-IEEE over seq, type and payload of an event
// ============================================================================

import (
	"encoding/binary"
	"hash/crc32"
)

// CalculateChecksum returns the checksum stored with an event.
func CalculateChecksum(seq uint64, eventType EventType, payload []byte) uint32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)

	h := crc32.NewIEEE()
	h.Write(buf[:])
	h.Write([]byte(eventType))
	h.Write(payload)
	return h.Sum32()
}

// VerifyChecksum reports whether event is intact.
func VerifyChecksum(event Event) bool {
	return event.Checksum == CalculateChecksum(event.Seq, event.Type, event.Payload)
}
