package decode

import (
	"context"
	"fmt"
)

// Adapter drives a Model one token at a time.
//
// Step clones the states it receives before handing them to the model, so a
// caller may keep using a state after passing it in, and every returned state
// is independent of every other. The only reshaping performed is narrowing the
// model output to the final position of each row.
type Adapter struct {
	model Model
	vocab int
	eos   int
}

// NewAdapter checks that the model and vocabulary agree and returns an
// Adapter over them.
func NewAdapter(m Model, v Vocabulary) (*Adapter, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: vocabulary is required", ErrInvalidConfig)
	}
	if m.VocabSize() != v.Size() {
		return nil, fmt.Errorf("%w: model emits %d logits, vocabulary has %d tokens", ErrVocabMismatch, m.VocabSize(), v.Size())
	}
	eos := v.EOS()
	if eos < 0 || eos >= v.Size() {
		return nil, fmt.Errorf("%w: end-of-sequence id %d outside vocabulary of %d", ErrVocabMismatch, eos, v.Size())
	}
	return &Adapter{model: m, vocab: v.Size(), eos: eos}, nil
}

func (a *Adapter) VocabSize() int { return a.vocab }

func (a *Adapter) EOS() int { return a.eos }

// Step feeds tokens[i] to the beam holding states[i] and returns its
// next-step logits and state.
func (a *Adapter) Step(ctx context.Context, tokens []int, states []State) ([][]float32, []State, error) {
	if len(tokens) != len(states) {
		return nil, nil, fmt.Errorf("step: %d tokens for %d states", len(tokens), len(states))
	}
	rows := make([][]int, len(tokens))
	in := make([]State, len(states))
	for i, tok := range tokens {
		if err := a.checkToken(tok); err != nil {
			return nil, nil, err
		}
		rows[i] = []int{tok}
		in[i] = states[i].Clone()
	}
	out, next, err := safeForward(ctx, a.model, rows, in)
	if err != nil {
		return nil, nil, err
	}
	last, err := a.narrow(out, next, len(rows))
	if err != nil {
		return nil, nil, err
	}
	return last, next, nil
}

// Prefill runs the model over every prompt token but the last and returns the
// seed for decoding. A single-token prompt seeds from the model's initial state.
func (a *Adapter) Prefill(ctx context.Context, prompt []int) (Seed, error) {
	if len(prompt) == 0 {
		return Seed{}, fmt.Errorf("%w: empty prompt", ErrInvalidConfig)
	}
	for _, tok := range prompt {
		if err := a.checkToken(tok); err != nil {
			return Seed{}, err
		}
	}
	n := len(prompt)
	st := a.model.NewState()
	if n > 1 {
		out, next, err := safeForward(ctx, a.model, [][]int{prompt[:n-1]}, []State{st})
		if err != nil {
			return Seed{}, err
		}
		if _, err := a.narrow(out, next, 1); err != nil {
			return Seed{}, err
		}
		st = next[0]
	}
	return Seed{Token: prompt[n-1], State: st}, nil
}

func (a *Adapter) checkToken(tok int) error {
	if tok < 0 || tok >= a.vocab {
		return fmt.Errorf("%w: token %d outside vocabulary of %d", ErrVocabMismatch, tok, a.vocab)
	}
	return nil
}

func (a *Adapter) narrow(out [][][]float32, next []State, rows int) ([][]float32, error) {
	if len(out) != rows || len(next) != rows {
		return nil, fmt.Errorf("model returned %d logit rows and %d states for %d inputs", len(out), len(next), rows)
	}
	last := make([][]float32, rows)
	for i, positions := range out {
		if len(positions) == 0 {
			return nil, fmt.Errorf("model returned no positions for row %d", i)
		}
		l := positions[len(positions)-1]
		if len(l) != a.vocab {
			return nil, fmt.Errorf("%w: row %d has %d logits, vocabulary has %d tokens", ErrVocabMismatch, i, len(l), a.vocab)
		}
		last[i] = l
	}
	return last, nil
}

// safeForward returns model errors unchanged and converts panics into errors.
func safeForward(ctx context.Context, m Model, tokens [][]int, states []State) (out [][][]float32, next []State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Forward: %v", rec)
		}
	}()
	return m.Forward(ctx, tokens, states)
}
