package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

func TestParseChunksJSON(t *testing.T) {
	data := []byte(`{
		"chunks": [
			{"id": "c1", "ordinal": 0, "text": "prazo é 30 dias", "parent_id": "p1"},
			{"id": "c2", "ordinal": 1, "conteudo": "multa de 2%"},
			{"id": "c3", "ordinal": 2, "text": ""}
		]
	}`)

	chunks, err := ParseChunksJSON(data)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "c1", chunks[0].ID)
	assert.Equal(t, "prazo é 30 dias", chunks[0].Text)
	assert.Equal(t, "p1", chunks[0].ParentID)
	assert.Equal(t, len("prazo é 30 dias"), chunks[0].Size)

	// legacy content key
	assert.Equal(t, "multa de 2%", chunks[1].Text)
}

func TestParseChunksJSONAssignsDefaults(t *testing.T) {
	data := []byte(`{"chunks": [{"text": "sem id"}, {"text": "também sem id"}]}`)

	chunks, err := ParseChunksJSON(data)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "chunk-1", chunks[0].ID)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, "chunk-2", chunks[1].ID)
	assert.Equal(t, 1, chunks[1].Ordinal)
}

func TestParseChunksJSONRejectsEmpty(t *testing.T) {
	for _, data := range []string{
		`{"chunks": []}`,
		`{"chunks": [{"id": "c1", "text": ""}]}`,
		`{}`,
	} {
		_, err := ParseChunksJSON([]byte(data))
		require.Error(t, err, "input %s", data)
		assert.Equal(t, sferrors.ErrCodeEmptyCorpus, sferrors.GetCode(err))
	}
}

func TestParseChunksJSONRejectsMalformed(t *testing.T) {
	_, err := ParseChunksJSON([]byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, sferrors.ErrCodeInvalidInput, sferrors.GetCode(err))
}

func TestLoadChunksJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"chunks": [{"id": "c1", "text": "vigência até 2025"}]}`), 0o644))

	chunks, err := LoadChunksJSON(path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)

	_, err = LoadChunksJSON(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidateChunks(t *testing.T) {
	valid := []Chunk{
		{ID: "c1", Text: "a"},
		{ID: "c2", Text: "b"},
	}
	require.NoError(t, ValidateChunks(valid))

	tests := []struct {
		name   string
		chunks []Chunk
		code   string
	}{
		{"empty batch", nil, sferrors.ErrCodeEmptyCorpus},
		{"missing id", []Chunk{{Text: "a"}}, sferrors.ErrCodeInvalidInput},
		{"empty text", []Chunk{{ID: "c1"}}, sferrors.ErrCodeInvalidInput},
		{"duplicate id", []Chunk{{ID: "c1", Text: "a"}, {ID: "c1", Text: "b"}}, sferrors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunks(tt.chunks)
			require.Error(t, err)
			assert.Equal(t, tt.code, sferrors.GetCode(err))
		})
	}
}
