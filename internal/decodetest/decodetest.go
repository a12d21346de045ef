// Package decodetest provides scripted language models for testing decoding
// strategies without a real network.
package decodetest

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/vocab"
)

// History is a State that records every token its beam has consumed.
type History struct {
	Tokens []int
}

func (h *History) Clone() decode.State {
	return &History{Tokens: slices.Clone(h.Tokens)}
}

// LogitsFunc returns next-token logits given every token consumed so far.
type LogitsFunc func(history []int) []float32

// Model is a scripted decode.Model. It records the tokens of every Forward
// call and can be told to fail on a given call.
type Model struct {
	Vocab  int
	Logits LogitsFunc

	// FailAt makes the FailAt-th Forward call (1-based) return Err.
	FailAt int
	Err    error

	calls [][]int
}

func (m *Model) VocabSize() int { return m.Vocab }

func (m *Model) NewState() decode.State { return &History{} }

func (m *Model) Forward(_ context.Context, tokens [][]int, states []decode.State) ([][][]float32, []decode.State, error) {
	var fed []int
	for _, row := range tokens {
		fed = append(fed, row...)
	}
	m.calls = append(m.calls, fed)
	if m.FailAt == len(m.calls) {
		return nil, nil, m.Err
	}

	out := make([][][]float32, len(tokens))
	next := make([]decode.State, len(tokens))
	for i, row := range tokens {
		h, ok := states[i].(*History)
		if !ok {
			return nil, nil, fmt.Errorf("decodetest: unexpected state %T", states[i])
		}
		positions := make([][]float32, 0, len(row))
		for _, tok := range row {
			h.Tokens = append(h.Tokens, tok)
			positions = append(positions, m.Logits(slices.Clone(h.Tokens)))
		}
		out[i] = positions
		next[i] = h
	}
	return out, next, nil
}

// Calls returns the tokens fed to each Forward call, rows concatenated.
func (m *Model) Calls() [][]int { return m.calls }

// Rows returns the number of tokens fed per Forward call.
func (m *Model) Rows() []int {
	rows := make([]int, len(m.calls))
	for i, c := range m.calls {
		rows[i] = len(c)
	}
	return rows
}

// Constant returns the same logits at every step.
func Constant(logits ...float32) LogitsFunc {
	return func([]int) []float32 { return slices.Clone(logits) }
}

// Vocab returns a vocabulary of tokens "t0".."t<size-1>" ending sequences at eos.
func Vocab(size, eos int) *vocab.Vocab {
	tokens := make([]string, size)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}
	v, err := vocab.New(tokens, fmt.Sprintf("t%d", eos))
	if err != nil {
		panic(err)
	}
	return v
}

// Adapter wraps m with a generated vocabulary, failing the test on error.
func Adapter(tb testing.TB, m *Model, eos int) *decode.Adapter {
	tb.Helper()
	a, err := decode.NewAdapter(m, Vocab(m.Vocab, eos))
	if err != nil {
		tb.Fatalf("NewAdapter: %v", err)
	}
	return a
}

// Seeds returns n seeds starting from token with empty histories.
func Seeds(n, token int) []decode.Seed {
	seeds := make([]decode.Seed, n)
	for i := range seeds {
		seeds[i] = decode.Seed{Token: token, State: &History{}}
	}
	return seeds
}
