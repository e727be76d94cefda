package store

import (
	"encoding/json"
	"fmt"
	"os"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// chunkDocument is the on-disk shape produced by the ingestion collaborator.
// Content may arrive under "text" or the legacy "conteudo" key.
type chunkDocument struct {
	Chunks []chunkRecord `json:"chunks"`
}

type chunkRecord struct {
	ID       string `json:"id"`
	Ordinal  *int   `json:"ordinal"`
	Text     string `json:"text"`
	Conteudo string `json:"conteudo"`
	ParentID string `json:"parent_id"`
}

// LoadChunksJSON reads a chunks document from disk. Records without content
// are dropped; missing IDs and ordinals are assigned from position. An empty
// chunk list is a validation error: indexing nothing is almost always a
// broken ingestion pipeline, not an intent.
func LoadChunksJSON(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sferrors.ValidationError(fmt.Sprintf("failed to read chunks file %s", path), err)
	}
	return ParseChunksJSON(data)
}

// ParseChunksJSON parses a chunks document from raw bytes.
func ParseChunksJSON(data []byte) ([]Chunk, error) {
	var doc chunkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, sferrors.ValidationError("failed to parse chunks JSON", err)
	}

	chunks := make([]Chunk, 0, len(doc.Chunks))
	for i, rec := range doc.Chunks {
		text := rec.Text
		if text == "" {
			text = rec.Conteudo
		}
		if text == "" {
			continue
		}

		id := rec.ID
		if id == "" {
			id = fmt.Sprintf("chunk-%d", i+1)
		}
		ordinal := i
		if rec.Ordinal != nil {
			ordinal = *rec.Ordinal
		}

		chunks = append(chunks, Chunk{
			ID:       id,
			Ordinal:  ordinal,
			Text:     text,
			Size:     len(text),
			ParentID: rec.ParentID,
		})
	}

	if len(chunks) == 0 {
		return nil, sferrors.New(sferrors.ErrCodeEmptyCorpus,
			"chunks document contains no usable chunks", nil)
	}

	return chunks, nil
}

// ValidateChunks checks a submitted chunk batch before indexing.
func ValidateChunks(chunks []Chunk) error {
	if len(chunks) == 0 {
		return sferrors.New(sferrors.ErrCodeEmptyCorpus, "no chunks submitted", nil)
	}
	seen := make(map[string]int, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return sferrors.ValidationError(fmt.Sprintf("chunk at position %d has no id", i), nil)
		}
		if c.Text == "" {
			return sferrors.ValidationError(fmt.Sprintf("chunk %q has empty text", c.ID), nil)
		}
		if prev, dup := seen[c.ID]; dup {
			return sferrors.ValidationError(fmt.Sprintf(
				"duplicate chunk id %q at positions %d and %d", c.ID, prev, i), nil)
		}
		seen[c.ID] = i
	}
	return nil
}
