package core

import (
	"encoding/binary"
	"strconv"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Segment is an ordered, immutable slice of a document's text used as a
// retrieval unit. Index is the segment's stable position within its document.
type Segment struct {
	Id    ID
	Index int
	Text  string
}

// NewSegment creates a segment with a content-derived ID.
// The ID is stable for the same text at the same position, so documents
// that repeat a passage verbatim still produce distinct segments.
func NewSegment(index int, text string) Segment {
	return Segment{
		Id:    IDFromContent(strconv.Itoa(index) + ":" + text),
		Index: index,
		Text:  text,
	}
}

// ScoredSegment is a retrieval hit: a segment together with its cosine
// similarity score against the query vector. Degenerate pairs carry -Inf.
type ScoredSegment struct {
	Segment Segment
	Score   float64
}
