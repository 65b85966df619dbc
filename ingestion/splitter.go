package ingestion

import (
	"github.com/poiesic/docquery/core"
)

// Splitter splits raw text into overlapping fixed-size segments.
// A Splitter is immutable and safe for concurrent use.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter with the given chunk size and overlap.
// Fails with core.ErrConfiguration unless 0 <= overlap < chunkSize.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if err := core.ValidateChunking(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the configured segment length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap between consecutive segments.
func (s *Splitter) Overlap() int { return s.overlap }

// Split walks the text with a stride of chunkSize-overlap, producing
// segments of chunkSize bytes (the last may be shorter). Consecutive
// segments share overlap bytes, so concatenating the segments with the
// overlap removed reconstructs the text exactly.
//
// Empty text produces no segments; text shorter than chunkSize produces
// exactly one segment spanning the whole text. Splitting is deterministic.
func (s *Splitter) Split(text string) []core.Segment {
	if len(text) == 0 {
		return nil
	}

	stride := s.chunkSize - s.overlap
	segments := make([]core.Segment, 0, (len(text)+stride-1)/stride)
	for start, idx := 0, 0; start < len(text); idx++ {
		end := min(start+s.chunkSize, len(text))
		segments = append(segments, core.NewSegment(idx, text[start:end]))
		if end == len(text) {
			break
		}
		start += stride
	}
	return segments
}
