package decode

import "context"

// State is model-defined state carried by one beam between steps.
// Clone must return a copy that shares no mutable memory with the receiver.
type State interface {
	Clone() State
}

// Model is the wrapped language model.
//
// Forward consumes one token sequence per row, each row continuing from the
// state at the same index, and returns logits for every consumed position
// shaped [rows][positions][vocab] together with the advanced states. Forward
// may update the states it is given in place.
type Model interface {
	VocabSize() int
	NewState() State
	Forward(ctx context.Context, tokens [][]int, states []State) ([][][]float32, []State, error)
}

// Vocabulary maps token ids to strings and names the end-of-sequence id.
type Vocabulary interface {
	Size() int
	EOS() int
	Token(id int) string
	ID(token string) (int, bool)
}

// Stepper advances a set of beams by one token each. Adapter is the
// production implementation; strategies only depend on this interface.
type Stepper interface {
	VocabSize() int
	EOS() int
	Step(ctx context.Context, tokens []int, states []State) ([][]float32, []State, error)
}

// Strategy turns seeds into finished hypotheses. Both the stochastic
// sequence sampler and beam search implement it.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, s Stepper, seeds []Seed) ([][]Hypothesis, error)
}

// Seed is the starting point of one batch element: the last prompt token,
// not yet consumed, and the model state after the rest of the prompt.
type Seed struct {
	Token int
	State State
}

// Hypothesis is a completed beam.
type Hypothesis struct {
	// Tokens holds the generated tokens, the end-of-sequence id included when
	// Finished is set. The seed token is not part of it.
	Tokens []int
	// LogProb is the cumulative log-probability of Tokens.
	LogProb float64
	// Score is the ranking score. For the sequence sampler it equals LogProb;
	// beam search applies its length penalty.
	Score float64
	// Length is the valid length: the step at which end-of-sequence was
	// emitted, or the maximum length when it never was.
	Length int
	// Finished reports whether the beam emitted end-of-sequence.
	Finished bool
}

// Padded returns Tokens padded with pad, or truncated, to exactly width ids.
func (h Hypothesis) Padded(width, pad int) []int {
	out := make([]int, width)
	n := copy(out, h.Tokens)
	for i := n; i < width; i++ {
		out[i] = pad
	}
	return out
}
