// Package beam implements deterministic best-first beam search with a
// length-normalised scorer.
package beam

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/logits"
)

// Defaults for the length penalty.
const (
	DefaultAlpha    = 0.6
	DefaultConstant = 5.0
)

// parallelCells is the live-beams x vocabulary size above which the per-row
// log-softmax of a step runs on several goroutines.
const parallelCells = 1 << 15

// Config configures a Search. It is copied at construction.
type Config struct {
	// BeamSize is K: the number of hypotheses kept and returned.
	BeamSize int
	// MaxLength bounds the number of generated tokens.
	MaxLength int
	// Alpha is the length-penalty sharpness, >= 0.
	Alpha float64
	// LengthPenaltyConstant is the length-penalty offset, > 0.
	LengthPenaltyConstant float64
	// Backfill keeps K live hypotheses after some have finished by promoting
	// lower-ranked candidates. Without it the live width shrinks to K minus
	// the number finished.
	Backfill bool
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.BeamSize < 1:
		return fmt.Errorf("%w: beam size must be >= 1, got %d", decode.ErrInvalidConfig, c.BeamSize)
	case c.MaxLength < 1:
		return fmt.Errorf("%w: max length must be >= 1, got %d", decode.ErrInvalidConfig, c.MaxLength)
	case !(c.Alpha >= 0) || math.IsInf(c.Alpha, 0):
		return fmt.Errorf("%w: alpha must be >= 0, got %v", decode.ErrInvalidConfig, c.Alpha)
	case !(c.LengthPenaltyConstant > 0) || math.IsInf(c.LengthPenaltyConstant, 0):
		return fmt.Errorf("%w: length penalty constant must be > 0, got %v", decode.ErrInvalidConfig, c.LengthPenaltyConstant)
	}
	return nil
}

// Search is the beam search decode.Strategy.
type Search struct {
	cfg    Config
	scorer Scorer
}

// New validates cfg and returns a Search.
func New(cfg Config) (*Search, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Search{
		cfg:    cfg,
		scorer: Scorer{Alpha: cfg.Alpha, Constant: cfg.LengthPenaltyConstant},
	}, nil
}

func (s *Search) Name() string { return "beam" }

func (s *Search) Config() Config { return s.cfg }

func (s *Search) Scorer() Scorer { return s.scorer }

type hypothesis struct {
	last    int
	state   decode.State
	tokens  []int
	logProb float64
}

type element struct {
	live     []*hypothesis
	finished []decode.Hypothesis
}

func (e *element) done(k int) bool {
	return len(e.finished) >= k || len(e.live) == 0
}

// Generate runs beam search from every seed. Each result holds at most
// BeamSize hypotheses ordered by score, ties resolved in favour of the
// hypothesis that finished first.
func (s *Search) Generate(ctx context.Context, st decode.Stepper, seeds []decode.Seed) ([][]decode.Hypothesis, error) {
	vocabSize, eos := st.VocabSize(), st.EOS()
	if eos < 0 || eos >= vocabSize {
		return nil, fmt.Errorf("%w: end-of-sequence id %d outside vocabulary of %d", decode.ErrVocabMismatch, eos, vocabSize)
	}
	log := logger.FromContext(ctx).With("strategy", s.Name())
	k := s.cfg.BeamSize

	elems := make([]*element, len(seeds))
	for i, seed := range seeds {
		elems[i] = &element{live: []*hypothesis{{last: seed.Token, state: seed.State}}}
	}

	var (
		tokens []int
		states []decode.State
	)
	for step := 1; step <= s.cfg.MaxLength; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tokens, states = tokens[:0], states[:0]
		for _, e := range elems {
			if e.done(k) {
				continue
			}
			for _, h := range e.live {
				tokens = append(tokens, h.last)
				states = append(states, h.state)
			}
		}
		if len(tokens) == 0 {
			break
		}

		rows, next, err := st.Step(ctx, tokens, states)
		if err != nil {
			return nil, err
		}
		if len(rows) != len(tokens) || len(next) != len(tokens) {
			return nil, fmt.Errorf("step returned %d rows for %d beams", len(rows), len(tokens))
		}
		logProbs, err := s.logSoftmax(rows, vocabSize)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		off := 0
		live, finished := 0, 0
		for _, e := range elems {
			if e.done(k) {
				continue
			}
			n := len(e.live)
			s.advance(e, logProbs[off:off+n], next[off:off+n], step, vocabSize, eos)
			off += n
			live += len(e.live)
			finished += len(e.finished)
		}
		log.Debug("decode step", "step", step, "live", live, "finished", finished)
	}

	out := make([][]decode.Hypothesis, len(elems))
	for i, e := range elems {
		for _, h := range e.live {
			e.finished = append(e.finished, decode.Hypothesis{
				Tokens:  h.tokens,
				LogProb: h.logProb,
				Score:   h.logProb / s.scorer.LengthPenalty(len(h.tokens)),
				Length:  len(h.tokens),
			})
		}
		e.live = nil
		slices.SortStableFunc(e.finished, func(a, b decode.Hypothesis) int {
			return cmp.Compare(b.Score, a.Score)
		})
		if len(e.finished) > k {
			e.finished = e.finished[:k]
		}
		out[i] = e.finished
	}
	return out, nil
}

// advance expands every live hypothesis of e over the vocabulary and keeps
// the best candidates. Candidates are enumerated hypothesis by hypothesis,
// token by token; that order breaks score ties.
func (s *Search) advance(e *element, logProbs [][]float64, next []decode.State, step, vocabSize, eos int) {
	k := s.cfg.BeamSize
	cum := make([]float64, len(e.live))
	for i, h := range e.live {
		cum[i] = h.logProb
	}
	combined := s.scorer.Score(cum, logProbs, step)
	flat := make([]float64, 0, len(e.live)*vocabSize)
	for _, row := range combined {
		flat = append(flat, row...)
	}

	// Each live hypothesis owns exactly one end-of-sequence candidate, so
	// len(live)+K candidates always hold K that keep going.
	want := k - len(e.finished)
	if s.cfg.Backfill {
		want = len(e.live) + k
	}

	owned := make([]bool, len(e.live))
	survivors := make([]*hypothesis, 0, k)
	for _, idx := range logits.TopK(flat, want) {
		if len(e.finished) >= k {
			break
		}
		// Zero-probability tokens never extend a hypothesis, so fewer than
		// K candidates may survive.
		if math.IsInf(flat[idx], -1) {
			continue
		}
		parent, tok := idx/vocabSize, idx%vocabSize
		p := e.live[parent]
		tokens := make([]int, len(p.tokens)+1)
		copy(tokens, p.tokens)
		tokens[len(p.tokens)] = tok
		logProb := p.logProb + logProbs[parent][tok]

		if tok == eos {
			e.finished = append(e.finished, decode.Hypothesis{
				Tokens:   tokens,
				LogProb:  logProb,
				Score:    flat[idx],
				Length:   step,
				Finished: true,
			})
			continue
		}
		if len(survivors) >= k {
			continue
		}

		// The first child takes the parent's new state; siblings get copies.
		state := next[parent]
		if owned[parent] {
			state = state.Clone()
		}
		owned[parent] = true
		survivors = append(survivors, &hypothesis{
			last:    tok,
			state:   state,
			tokens:  tokens,
			logProb: logProb,
		})
		if s.cfg.Backfill && len(survivors) == k {
			break
		}
	}
	e.live = survivors
}

// logSoftmax normalises every row. Rows are independent, so large steps are
// split across goroutines; each row is written by one goroutine only.
func (s *Search) logSoftmax(rows [][]float32, vocabSize int) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for _, row := range rows {
		if len(row) != vocabSize {
			return nil, fmt.Errorf("%w: row has %d logits, vocabulary has %d tokens", decode.ErrVocabMismatch, len(row), vocabSize)
		}
	}
	if len(rows)*vocabSize < parallelCells {
		for i, row := range rows {
			lp, err := logits.LogSoftmax(nil, row, 1)
			if err != nil {
				return nil, err
			}
			out[i] = lp
		}
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, row := range rows {
		g.Go(func() error {
			lp, err := logits.LogSoftmax(nil, row, 1)
			if err != nil {
				return err
			}
			out[i] = lp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
