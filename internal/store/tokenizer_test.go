package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "lowercases terms",
			input:    "Prazo de Entrega",
			expected: []string{"prazo", "de", "entrega"},
		},
		{
			name:     "keeps accents",
			input:    "vigência até 2025",
			expected: []string{"vigência", "até", "2025"},
		},
		{
			name:     "keeps clause references intact",
			input:    "conforme item 2.1 do anexo/b",
			expected: []string{"conforme", "item", "2.1", "do", "anexo/b"},
		},
		{
			name:     "keeps hyphenated terms",
			input:    "multa pós-vencimento",
			expected: []string{"multa", "pós-vencimento"},
		},
		{
			name:     "strips punctuation",
			input:    "multa de 2%, correto?",
			expected: []string{"multa", "de", "2", "correto"},
		},
		{
			name:     "empty input",
			input:    "   ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}
