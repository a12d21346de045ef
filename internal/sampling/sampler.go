// Package sampling implements stochastic sequence generation: every batch
// element is rolled out into BeamSize independent samples drawn from the
// temperature-scaled model distribution.
package sampling

import (
	"context"
	"fmt"
	"math"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/logits"
)

// Config configures a Sampler. It is copied at construction.
type Config struct {
	// BeamSize is the number of independent samples per batch element.
	BeamSize int
	// Temperature divides the logits before the softmax. Must be > 0.
	Temperature float64
	// MaxLength bounds the number of generated tokens per sample.
	MaxLength int
	// Seed fixes the random sequence. Negative seeds draw from the clock.
	Seed int64
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.BeamSize < 1:
		return fmt.Errorf("%w: beam size must be >= 1, got %d", decode.ErrInvalidConfig, c.BeamSize)
	case !(c.Temperature > 0) || math.IsInf(c.Temperature, 0):
		return fmt.Errorf("%w: temperature must be > 0, got %v", decode.ErrInvalidConfig, c.Temperature)
	case c.MaxLength < 1:
		return fmt.Errorf("%w: max length must be >= 1, got %d", decode.ErrInvalidConfig, c.MaxLength)
	}
	return nil
}

// Sampler is the stochastic decode.Strategy.
type Sampler struct {
	cfg Config
}

// New validates cfg and returns a Sampler.
func New(cfg Config) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{cfg: cfg}, nil
}

func (s *Sampler) Name() string { return "sample" }

func (s *Sampler) Config() Config { return s.cfg }

type sample struct {
	last     int
	state    decode.State
	tokens   []int
	logProb  float64
	length   int
	finished bool
}

// Generate draws BeamSize samples for every seed. Results keep sample order;
// no ranking is applied. Each call with a fixed seed starts the same random
// sequence, so repeated calls with identical inputs return identical results.
func (s *Sampler) Generate(ctx context.Context, st decode.Stepper, seeds []decode.Seed) ([][]decode.Hypothesis, error) {
	vocabSize, eos := st.VocabSize(), st.EOS()
	if eos < 0 || eos >= vocabSize {
		return nil, fmt.Errorf("%w: end-of-sequence id %d outside vocabulary of %d", decode.ErrVocabMismatch, eos, vocabSize)
	}
	draw, err := logits.NewSampler(logits.SamplerConfig{Seed: s.cfg.Seed, Temperature: s.cfg.Temperature})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", decode.ErrInvalidConfig, err)
	}
	log := logger.FromContext(ctx).With("strategy", s.Name())

	batch := make([][]*sample, len(seeds))
	for b, seed := range seeds {
		beams := make([]*sample, s.cfg.BeamSize)
		for i := range beams {
			beams[i] = &sample{
				last:   seed.Token,
				state:  seed.State.Clone(),
				tokens: make([]int, 0, s.cfg.MaxLength),
			}
		}
		batch[b] = beams
	}

	var (
		active []*sample
		tokens []int
		states []decode.State
	)
	for step := 1; step <= s.cfg.MaxLength; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		active, tokens, states = active[:0], tokens[:0], states[:0]
		for _, beams := range batch {
			for _, smp := range beams {
				if smp.finished {
					continue
				}
				active = append(active, smp)
				tokens = append(tokens, smp.last)
				states = append(states, smp.state)
			}
		}
		if len(active) == 0 {
			break
		}

		rows, next, err := st.Step(ctx, tokens, states)
		if err != nil {
			return nil, err
		}
		if len(rows) != len(active) || len(next) != len(active) {
			return nil, fmt.Errorf("step returned %d rows for %d beams", len(rows), len(active))
		}

		finished := 0
		for i, smp := range active {
			if len(rows[i]) != vocabSize {
				return nil, fmt.Errorf("%w: row has %d logits, vocabulary has %d tokens", decode.ErrVocabMismatch, len(rows[i]), vocabSize)
			}
			id, lp, err := draw.Sample(rows[i])
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", step, err)
			}
			smp.tokens = append(smp.tokens, id)
			smp.logProb += lp
			smp.last = id
			smp.state = next[i]
			if id == eos {
				smp.finished = true
				smp.length = step
				smp.state = nil
				finished++
			}
		}
		log.Debug("decode step", "step", step, "active", len(active), "finished", finished)
	}

	out := make([][]decode.Hypothesis, len(batch))
	for b, beams := range batch {
		hyps := make([]decode.Hypothesis, len(beams))
		for i, smp := range beams {
			length := smp.length
			if !smp.finished {
				length = len(smp.tokens)
			}
			hyps[i] = decode.Hypothesis{
				Tokens:   smp.tokens,
				LogProb:  smp.logProb,
				Score:    smp.logProb,
				Length:   length,
				Finished: smp.finished,
			}
		}
		out[b] = hyps
	}
	return out, nil
}
