// Package toy provides a small deterministic recurrent language model. It has
// no trained weights; it exists to drive the decoding strategies end to end
// from the CLI, the HTTP server and the benchmarks.
package toy

import (
	"context"
	"fmt"
	"slices"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/tensor"
)

// State is the hidden activation of one sequence.
type State struct {
	H   []float32
	Pos int
}

func (s *State) Clone() decode.State {
	return &State{H: slices.Clone(s.H), Pos: s.Pos}
}

// ToyLM is an Elman network:
//
//	h' = tanh(Emb[tok] + U*h)
//	logits = Out*h' + Bias
type ToyLM struct {
	Vocab  int
	Hidden int

	Emb  tensor.Mat // [Vocab x Hidden]
	U    tensor.Mat // [Hidden x Hidden]
	Out  tensor.Mat // [Vocab x Hidden]
	Bias []float32  // [Vocab]
}

// NewToyLM returns a model whose weights are derived from seed. The same
// seed always produces the same model.
func NewToyLM(vocab, hidden int, seed int64) (*ToyLM, error) {
	if vocab < 1 || hidden < 1 {
		return nil, fmt.Errorf("%w: toy model needs vocab and hidden >= 1, got %d and %d", decode.ErrInvalidConfig, vocab, hidden)
	}
	m := &ToyLM{
		Vocab:  vocab,
		Hidden: hidden,
		Emb:    tensor.NewMat(vocab, hidden),
		U:      tensor.NewMat(hidden, hidden),
		Out:    tensor.NewMat(vocab, hidden),
		Bias:   make([]float32, vocab),
	}
	tensor.FillRand(&m.Emb, seed+11, 1)
	// Keep the recurrence contractive so long sequences stay well behaved.
	tensor.FillRand(&m.U, seed+17, 0.5/float32(hidden))
	tensor.FillRand(&m.Out, seed+23, 2)
	return m, nil
}

func (m *ToyLM) VocabSize() int { return m.Vocab }

func (m *ToyLM) NewState() decode.State {
	return &State{H: make([]float32, m.Hidden)}
}

// Forward runs every row of tokens through the recurrence. States are
// advanced in place.
func (m *ToyLM) Forward(ctx context.Context, tokens [][]int, states []decode.State) ([][][]float32, []decode.State, error) {
	if len(tokens) != len(states) {
		return nil, nil, fmt.Errorf("toy: %d token rows for %d states", len(tokens), len(states))
	}
	out := make([][][]float32, len(tokens))
	rec := make([]float32, m.Hidden)
	for i, row := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		st, ok := states[i].(*State)
		if !ok {
			return nil, nil, fmt.Errorf("toy: unexpected state %T", states[i])
		}
		if len(st.H) != m.Hidden {
			return nil, nil, fmt.Errorf("toy: state has %d hidden units, model has %d", len(st.H), m.Hidden)
		}
		positions := make([][]float32, len(row))
		for p, tok := range row {
			if tok < 0 || tok >= m.Vocab {
				return nil, nil, fmt.Errorf("%w: token %d outside vocabulary of %d", decode.ErrVocabMismatch, tok, m.Vocab)
			}
			tensor.MatVec(rec, &m.U, st.H)
			copy(st.H, m.Emb.Row(tok))
			tensor.Add(st.H, rec)
			tensor.Tanh(st.H)
			st.Pos++

			logits := make([]float32, m.Vocab)
			tensor.MatVec(logits, &m.Out, st.H)
			tensor.Add(logits, m.Bias)
			positions[p] = logits
		}
		out[i] = positions
	}
	return out, states, nil
}
