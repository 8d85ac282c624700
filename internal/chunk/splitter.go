// Package chunk splits documents into bounded, overlapping windows for
// embedding.
//
// Cut points prefer the coarsest separator available inside the current
// window (paragraph break, then line break, then space) and fall back to a
// hard character cut only when a window contains none. Consecutive chunks
// of one document always share exactly the configured overlap, so a fact
// straddling a cut point is fully present in at least one chunk.
package chunk

import (
	"strings"

	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/document"
)

// separators in coarsest-first priority order.
var separators = []string{"\n\n", "\n", " "}

// Splitter produces overlapping chunks of at most Size runes (a single
// atomic unit longer than Size is emitted whole rather than cut mid-unit).
// Deterministic: identical input and configuration yield identical output.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter builds a Splitter. The configuration is assumed validated
// (overlap < size).
func NewSplitter(cfg config.ChunkConfig) *Splitter {
	return &Splitter{size: cfg.Size, overlap: cfg.Overlap}
}

// Split turns one document into chunk documents. Metadata is inherited per
// chunk and extended with the chunk index; whitespace-only windows are
// dropped.
func (s *Splitter) Split(doc document.Document) []document.Document {
	pieces := s.SplitText(doc.Content)

	chunks := make([]document.Document, 0, len(pieces))
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		md := doc.CloneMetadata()
		md[document.MetaChunk] = len(chunks)
		chunks = append(chunks, document.Document{Content: piece, Metadata: md})
	}
	return chunks
}

// SplitDocuments splits a batch, keeping per-document overlap isolation:
// chunks never span two source documents.
func (s *Splitter) SplitDocuments(docs []document.Document) []document.Document {
	var out []document.Document
	for _, doc := range docs {
		out = append(out, s.Split(doc)...)
	}
	return out
}

// SplitText splits raw text into windows of at most s.size runes where
// window i+1 begins exactly s.overlap runes before window i ends. The final
// window may be shorter.
func (s *Splitter) SplitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		if len(runes)-start <= s.size {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := s.findCut(runes, start)
		chunks = append(chunks, string(runes[start:cut]))

		if cut >= len(runes) {
			break
		}

		next := cut - s.overlap
		if next <= start {
			// Overlap would stall on a short chunk; forgo it to guarantee
			// forward progress.
			next = cut
		}
		start = next
	}

	return chunks
}

// findCut picks the end of the window starting at start. It prefers the
// last occurrence of the coarsest separator inside the window, provided
// cutting there still advances past the overlap region. A window with no
// usable separator holds one oversized atomic unit: the cut extends to the
// unit's end instead of splitting it.
func (s *Splitter) findCut(runes []rune, start int) int {
	end := start + s.size
	window := string(runes[start:end])

	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := start + len([]rune(window[:idx]))
		// The next window starts at cut-overlap; the cut must clear the
		// overlap region or the splitter would loop in place.
		if cut-s.overlap > start {
			return cut
		}
	}

	// Oversized atomic unit: extend to the next separator anywhere after
	// the window, or to the end of the text.
	rest := string(runes[end:])
	bestIdx := -1
	for _, sep := range separators {
		if idx := strings.Index(rest, sep); idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			bestIdx = idx
		}
	}
	if bestIdx < 0 {
		return len(runes)
	}
	return end + len([]rune(rest[:bestIdx]))
}
