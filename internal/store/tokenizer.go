package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches word-like sequences, keeping hyphens, dots and slashes
// inside a token so that clause references ("2.1", "art-5", "anexo/b") and
// dates survive tokenization intact.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_\-./]+`)

// Tokenize splits text into lowercase query/index terms.
// The same tokenizer runs at build and query time; BM25 scores are only
// meaningful when both sides agree on what a term is.
func Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return tokenRegex.FindAllString(strings.ToLower(text), -1)
}
