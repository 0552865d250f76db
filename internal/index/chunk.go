package index

import (
	"fmt"
	"strings"
	"unicode"
)

// charsPerPage approximates how much source text maps onto one "page" for
// locator purposes. Citations render as page references in reports.
const charsPerPage = 3000

// Chunk is a contiguous span of document text with a stable locator and a
// precomputed embedding vector.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID int64     `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Page       int       `json:"page"`
	Offset     int       `json:"offset"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Locator renders the stable page/offset reference used by citations.
func (c Chunk) Locator() string {
	return fmt.Sprintf("p%d@%d", c.Page, c.Offset)
}

// Chunker splits document text into overlapping word-bounded chunks.
type Chunker struct {
	// Size is the target chunk length in characters.
	Size int
	// Overlap is how many trailing characters carry into the next chunk.
	Overlap int
}

// Split chunks content for the given document. Chunk boundaries land on
// whitespace so words never split, and every chunk records its byte offset.
func (ck Chunker) Split(documentID int64, content string) []Chunk {
	size := ck.Size
	if size <= 0 {
		size = 800
	}
	overlap := ck.Overlap
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	ordinal := 0
	for start < len(content) {
		end := start + size
		if end >= len(content) {
			end = len(content)
		} else {
			// Back up to the nearest whitespace so the chunk ends on a word.
			cut := end
			for cut > start && !unicode.IsSpace(rune(content[cut-1])) {
				cut--
			}
			if cut > start {
				end = cut
			}
		}

		text := strings.TrimSpace(content[start:end])
		if text != "" {
			chunks = append(chunks, Chunk{
				ID:         fmt.Sprintf("%d-%d", documentID, ordinal),
				DocumentID: documentID,
				Ordinal:    ordinal,
				Page:       start/charsPerPage + 1,
				Offset:     start,
				Text:       text,
			})
			ordinal++
		}

		if end == len(content) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
