package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Charset is a token list loaded from a dictionary file, one token per line.
type Charset struct {
	Tokens []string
	index  map[string]int
}

// NewCharset builds a charset from tokens. Duplicates keep their first index.
func NewCharset(tokens []string) *Charset {
	idx := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if _, ok := idx[t]; !ok {
			idx[t] = i
		}
	}
	return &Charset{Tokens: tokens, index: idx}
}

// LoadCharset reads a dictionary. When keepBlank is false, empty lines are
// skipped and tokens are trimmed; vocabularies whose ids are line numbers
// need keepBlank.
func LoadCharset(path string, keepBlank bool) (*Charset, error) {
	if path == "" {
		return nil, errors.New("dictionary path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: dictionary path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	var tokens []string
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		line = strings.TrimRight(line, "\r")
		if !keepBlank {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading dictionary: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("dictionary is empty: %s", path)
	}
	return NewCharset(tokens), nil
}

// Size returns the number of tokens.
func (c *Charset) Size() int { return len(c.Tokens) }

// Index returns the id of token, or -1.
func (c *Charset) Index(token string) int {
	if i, ok := c.index[token]; ok {
		return i
	}
	return -1
}

// Token returns the token for id, or "".
func (c *Charset) Token(id int) string {
	if id < 0 || id >= len(c.Tokens) {
		return ""
	}
	return c.Tokens[id]
}
