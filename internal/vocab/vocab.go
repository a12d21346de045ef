// Package vocab provides the concrete vocabulary used by the CLI and server:
// an immutable id<->token table with a distinguished end-of-sequence token.
package vocab

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/loom/internal/decode"
)

// DefaultEOS is the end-of-sequence token used when a file does not name one.
const DefaultEOS = "</s>"

// Vocab is an immutable token table. It satisfies decode.Vocabulary.
type Vocab struct {
	tokens []string
	ids    map[string]int
	eos    int
}

// File is the on-disk JSON layout:
//
//	{"tokens": ["</s>", "the", "cat"], "eos": "</s>"}
type File struct {
	Tokens []string `json:"tokens"`
	EOS    string   `json:"eos,omitempty"`
}

// New builds a vocabulary from tokens in id order. eos must be one of them.
func New(tokens []string, eos string) (*Vocab, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: no tokens")
	}
	ids := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("vocab: empty token at id %d", i)
		}
		if prev, ok := ids[tok]; ok {
			return nil, fmt.Errorf("vocab: token %q appears at ids %d and %d", tok, prev, i)
		}
		ids[tok] = i
	}
	id, ok := ids[eos]
	if !ok {
		return nil, fmt.Errorf("%w: end-of-sequence token %q not in vocabulary", decode.ErrVocabMismatch, eos)
	}
	return &Vocab{
		tokens: append([]string(nil), tokens...),
		ids:    ids,
		eos:    id,
	}, nil
}

// Parse decodes a vocabulary from its JSON form.
func Parse(data []byte) (*Vocab, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("vocab: decode: %w", err)
	}
	eos := f.EOS
	if eos == "" {
		eos = DefaultEOS
	}
	return New(f.Tokens, eos)
}

// Load reads a vocabulary JSON file.
func Load(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: read %s: %w", path, err)
	}
	return Parse(data)
}

func (v *Vocab) Size() int { return len(v.tokens) }

func (v *Vocab) EOS() int { return v.eos }

// Token returns the string for id, or a placeholder for ids outside the table.
func (v *Vocab) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return fmt.Sprintf("<unk:%d>", id)
	}
	return v.tokens[id]
}

func (v *Vocab) ID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Encode splits text on whitespace and maps every word to its id.
func (v *Vocab) Encode(text string) ([]int, error) {
	words := strings.Fields(text)
	ids := make([]int, 0, len(words))
	for _, w := range words {
		id, ok := v.ids[w]
		if !ok {
			return nil, fmt.Errorf("%w: unknown token %q", decode.ErrVocabMismatch, w)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode joins tokens with spaces, dropping end-of-sequence.
func (v *Vocab) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if id == v.eos {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.Token(id))
	}
	return sb.String()
}

// MarshalJSON writes the vocabulary in its file form.
func (v *Vocab) MarshalJSON() ([]byte, error) {
	return json.Marshal(File{Tokens: v.tokens, EOS: v.tokens[v.eos]})
}
