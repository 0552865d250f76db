package index

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeChunks serializes chunks, embeddings included, for persistence on
// the document row.
func EncodeChunks(chunks []Chunk) (string, error) {
	data, err := json.Marshal(chunks)
	if err != nil {
		return "", fmt.Errorf("encode chunks: %w", err)
	}
	return string(data), nil
}

// DecodeChunks restores persisted chunks.
func DecodeChunks(raw string) ([]Chunk, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var chunks []Chunk
	if err := json.Unmarshal([]byte(raw), &chunks); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	return chunks, nil
}
