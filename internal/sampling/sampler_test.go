package sampling

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/decodetest"
	"github.com/samcharles93/loom/internal/logits"
)

func mustNew(t *testing.T, cfg Config) *Sampler {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero_beams", Config{BeamSize: 0, Temperature: 1, MaxLength: 4}},
		{"zero_temperature", Config{BeamSize: 2, Temperature: 0, MaxLength: 4}},
		{"negative_temperature", Config{BeamSize: 2, Temperature: -0.5, MaxLength: 4}},
		{"nan_temperature", Config{BeamSize: 2, Temperature: math.NaN(), MaxLength: 4}},
		{"zero_length", Config{BeamSize: 2, Temperature: 1, MaxLength: 0}},
	}
	for _, tc := range tests {
		if _, err := New(tc.cfg); !errors.Is(err, decode.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

func TestReturnsBeamSizeResultsWithinMaxLength(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 5, Logits: decodetest.Constant(0.5, 0.1, 0.2, 0.3, 0.4)}
	a := decodetest.Adapter(t, m, 4)
	s := mustNew(t, Config{BeamSize: 6, Temperature: 1, MaxLength: 7, Seed: 11})

	out, err := s.Generate(context.Background(), a, decodetest.Seeds(3, 0))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 batch elements, got %d", len(out))
	}
	for b, hyps := range out {
		if len(hyps) != 6 {
			t.Fatalf("element %d: expected 6 samples, got %d", b, len(hyps))
		}
		for i, h := range hyps {
			if h.Length < 1 || h.Length > 7 {
				t.Fatalf("element %d sample %d: length %d out of range", b, i, h.Length)
			}
			if len(h.Tokens) != h.Length {
				t.Fatalf("element %d sample %d: %d tokens for length %d", b, i, len(h.Tokens), h.Length)
			}
			if h.Finished != (h.Tokens[len(h.Tokens)-1] == 4) {
				t.Fatalf("element %d sample %d: finished=%v tokens=%v", b, i, h.Finished, h.Tokens)
			}
			if !h.Finished && h.Length != 7 {
				t.Fatalf("unfinished sample must have max length, got %d", h.Length)
			}
			if h.Score != h.LogProb || h.LogProb > 0 {
				t.Fatalf("unexpected score %f / log-prob %f", h.Score, h.LogProb)
			}
		}
	}
}

func TestFixedSeedIsReproducible(t *testing.T) {
	t.Parallel()

	run := func() [][]decode.Hypothesis {
		m := &decodetest.Model{Vocab: 6, Logits: decodetest.Constant(1, 0.5, 0.2, 0.8, 0.1, 0.3)}
		a := decodetest.Adapter(t, m, 5)
		s := mustNew(t, Config{BeamSize: 4, Temperature: 0.7, MaxLength: 10, Seed: 1234})
		out, err := s.Generate(context.Background(), a, decodetest.Seeds(2, 1))
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		return out
	}
	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ across runs:\n%v\n%v", a, b)
	}
}

// TestFinishedSamplesAreNotExpanded checks that a sample emitting
// end-of-sequence at step t is never fed back at step t+1.
func TestFinishedSamplesAreNotExpanded(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 3, Logits: decodetest.Constant(0, 0, 0)}
	a := decodetest.Adapter(t, m, 2)
	s := mustNew(t, Config{BeamSize: 8, Temperature: 1, MaxLength: 6, Seed: 5})

	out, err := s.Generate(context.Background(), a, decodetest.Seeds(1, 0))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rows := m.Rows()
	for step := 1; step <= len(rows); step++ {
		alive := 0
		for _, h := range out[0] {
			if h.Length >= step {
				alive++
			}
		}
		if rows[step-1] != alive {
			t.Fatalf("step %d: model saw %d beams, %d were unfinished", step, rows[step-1], alive)
		}
	}
	for _, h := range out[0] {
		if h.Finished && h.Tokens[h.Length-1] != 2 {
			t.Fatalf("finished sample does not end in end-of-sequence: %v", h.Tokens)
		}
	}
}

func TestAllFinishOnFirstStep(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 4, Logits: decodetest.Constant(-50, -50, -50, 50)}
	a := decodetest.Adapter(t, m, 3)
	s := mustNew(t, Config{BeamSize: 3, Temperature: 1, MaxLength: 5, Seed: 2})

	out, err := s.Generate(context.Background(), a, decodetest.Seeds(1, 0))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := m.Rows(); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("expected a single decode step over 3 beams, got %v", got)
	}
	for _, h := range out[0] {
		if !h.Finished || h.Length != 1 || !reflect.DeepEqual(h.Tokens, []int{3}) {
			t.Fatalf("unexpected sample %+v", h)
		}
	}
}

func TestNeverSamplesZeroProbabilityTokens(t *testing.T) {
	t.Parallel()

	inf := float32(math.Inf(-1))
	m := &decodetest.Model{Vocab: 5, Logits: decodetest.Constant(inf, 0, inf, 1, 0.5)}
	a := decodetest.Adapter(t, m, 4)
	s := mustNew(t, Config{BeamSize: 32, Temperature: 1.3, MaxLength: 12, Seed: -1})

	out, err := s.Generate(context.Background(), a, decodetest.Seeds(2, 1))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, hyps := range out {
		for _, h := range hyps {
			for _, tok := range h.Tokens {
				if tok == 0 || tok == 2 {
					t.Fatalf("sampled zero-probability token in %v", h.Tokens)
				}
			}
			if math.IsInf(h.LogProb, 0) {
				t.Fatalf("infinite log-probability for %v", h.Tokens)
			}
		}
	}
}

// TestHighTemperatureApproachesUniform draws many single-step samples at a
// huge temperature and checks the empirical frequencies are close to uniform.
func TestHighTemperatureApproachesUniform(t *testing.T) {
	t.Parallel()

	const n = 4000
	m := &decodetest.Model{Vocab: 4, Logits: decodetest.Constant(0, 5, 10, -3)}
	a := decodetest.Adapter(t, m, 3)
	s := mustNew(t, Config{BeamSize: n, Temperature: 1e6, MaxLength: 1, Seed: 77})

	out, err := s.Generate(context.Background(), a, decodetest.Seeds(1, 0))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	counts := make([]int, 4)
	for _, h := range out[0] {
		counts[h.Tokens[0]]++
	}
	for tok, c := range counts {
		freq := float64(c) / n
		if math.Abs(freq-0.25) > 0.03 {
			t.Fatalf("token %d frequency %.3f too far from uniform (counts %v)", tok, freq, counts)
		}
	}
}

func TestLowTemperatureIsGreedy(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 4, Logits: decodetest.Constant(0.1, 0.3, 0.2, 0)}
	a := decodetest.Adapter(t, m, 3)
	s := mustNew(t, Config{BeamSize: 5, Temperature: 1e-4, MaxLength: 3, Seed: 9})

	out, err := s.Generate(context.Background(), a, decodetest.Seeds(1, 0))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, h := range out[0] {
		if !reflect.DeepEqual(h.Tokens, []int{1, 1, 1}) {
			t.Fatalf("expected argmax rollout, got %v", h.Tokens)
		}
	}
}

func TestBatchElementsAreIndependent(t *testing.T) {
	t.Parallel()

	// The favoured token depends on the first token the beam consumed.
	m := &decodetest.Model{Vocab: 4, Logits: func(h []int) []float32 {
		if h[0] == 0 {
			return []float32{0, 40, 0, 0}
		}
		return []float32{0, 0, 40, 0}
	}}
	a := decodetest.Adapter(t, m, 3)
	s := mustNew(t, Config{BeamSize: 2, Temperature: 1, MaxLength: 2, Seed: 4})

	seeds := []decode.Seed{
		{Token: 0, State: &decodetest.History{}},
		{Token: 1, State: &decodetest.History{}},
	}
	out, err := s.Generate(context.Background(), a, seeds)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, h := range out[0] {
		if !reflect.DeepEqual(h.Tokens, []int{1, 1}) {
			t.Fatalf("element 0: got %v", h.Tokens)
		}
	}
	for _, h := range out[1] {
		if !reflect.DeepEqual(h.Tokens, []int{2, 2}) {
			t.Fatalf("element 1: got %v", h.Tokens)
		}
	}
	for i, seed := range seeds {
		if got := seed.State.(*decodetest.History).Tokens; len(got) != 0 {
			t.Fatalf("seed %d state mutated: %v", i, got)
		}
	}
}

func TestModelErrorAbortsGeneration(t *testing.T) {
	t.Parallel()

	boom := errors.New("model exploded")
	m := &decodetest.Model{Vocab: 3, Logits: decodetest.Constant(0, 1, -5), FailAt: 2, Err: boom}
	a := decodetest.Adapter(t, m, 2)
	s := mustNew(t, Config{BeamSize: 2, Temperature: 1, MaxLength: 5, Seed: 1})

	out, err := s.Generate(context.Background(), a, decodetest.Seeds(1, 0))
	if err != boom {
		t.Fatalf("expected unmodified model error, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no partial result, got %v", out)
	}
}

func TestDegenerateLogitsFail(t *testing.T) {
	t.Parallel()

	inf := float32(math.Inf(-1))
	m := &decodetest.Model{Vocab: 3, Logits: decodetest.Constant(inf, inf, inf)}
	a := decodetest.Adapter(t, m, 2)
	s := mustNew(t, Config{BeamSize: 1, Temperature: 1, MaxLength: 2})

	if _, err := s.Generate(context.Background(), a, decodetest.Seeds(1, 0)); !errors.Is(err, logits.ErrDegenerate) {
		t.Fatalf("expected ErrDegenerate, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 3, Logits: decodetest.Constant(0, 0, 0)}
	a := decodetest.Adapter(t, m, 2)
	s := mustNew(t, Config{BeamSize: 1, Temperature: 1, MaxLength: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Generate(ctx, a, decodetest.Seeds(1, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(m.Calls()) != 0 {
		t.Fatalf("model ran %d times after cancellation", len(m.Calls()))
	}
}
