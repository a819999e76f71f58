package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Fingerprint is the stable dedup key for the high-volume error/warning
// sub-stream. Same fingerprint means same logical incident.
type Fingerprint string

// NewFingerprint derives the dedup key from the event description, the
// originating component and the first stack frame (empty when unavailable).
// The separator byte keeps field boundaries unambiguous.
func NewFingerprint(description, component, firstFrame string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(description))
	h.Write([]byte{0x1f})
	h.Write([]byte(component))
	h.Write([]byte{0x1f})
	h.Write([]byte(firstFrame))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// ErrorGroup collapses repeated error/warning events with the same
// fingerprint into one row with a running count.
// Invariants: Count only increases; LastSeen >= FirstSeen.
type ErrorGroup struct {
	Fingerprint Fingerprint
	Level       Level
	Component   string
	Description string
	Count       int64
	FirstSeen   time.Time
	LastSeen    time.Time
}
