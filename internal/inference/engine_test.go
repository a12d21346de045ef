package inference

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/decodetest"
)

type recordingObserver struct {
	mu         sync.Mutex
	steps      []int
	gens       []error
	strategies []string
}

func (o *recordingObserver) ObserveStep(_ string, beams int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, beams)
}

func (o *recordingObserver) ObserveGeneration(strategy string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gens = append(o.gens, err)
	o.strategies = append(o.strategies, strategy)
}

func newEngine(t *testing.T, m *decodetest.Model, obs Observer) *Engine {
	t.Helper()
	var opts []Option
	if obs != nil {
		opts = append(opts, WithObserver(obs))
	}
	e, err := NewEngine("test", m, decodetest.Vocab(m.Vocab, m.Vocab-1), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngineBeamSearch(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 4, Logits: decodetest.Constant(0, 2, 1, -5)}
	obs := &recordingObserver{}
	e := newEngine(t, m, obs)

	req := ResolveRequest(RequestOptions{
		Prompts:    []string{"t1 t2"},
		BeamSize:   ptr(2),
		MaxLength:  ptr(3),
		NumResults: ptr(1),
	}, Defaults{})
	res, err := e.Generate(context.Background(), &req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if res.Strategy != StrategyBeam || len(res.Elements) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	outs := res.Elements[0].Outputs
	if len(outs) != 1 {
		t.Fatalf("num_results not applied: %d outputs", len(outs))
	}
	if outs[0].Text != "t1 t1 t1" || !reflect.DeepEqual(outs[0].Tokens, []int{1, 1, 1}) || outs[0].Length != 3 {
		t.Fatalf("unexpected best output %+v", outs[0])
	}

	// The prompt prefix is prefilled; decoding starts from the last prompt token.
	if calls := m.Calls(); !reflect.DeepEqual(calls[0], []int{1}) || !reflect.DeepEqual(calls[1], []int{2}) {
		t.Fatalf("unexpected model calls %v", calls)
	}
	if res.Stats.Steps != 3 || res.Stats.BeamSteps != 5 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	if !reflect.DeepEqual(obs.steps, []int{1, 2, 2}) || len(obs.gens) != 1 || obs.gens[0] != nil {
		t.Fatalf("unexpected observations %v %v", obs.steps, obs.gens)
	}
}

func TestEngineSampleBatch(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 4, Logits: decodetest.Constant(0, 1, 1, 0.5)}
	e := newEngine(t, m, nil)

	req := ResolveRequest(RequestOptions{
		Prompts:   []string{"t1", "t2 t0"},
		Strategy:  ptr(StrategySample),
		BeamSize:  ptr(3),
		MaxLength: ptr(4),
		Seed:      ptr(int64(11)),
	}, Defaults{})
	res, err := e.Generate(context.Background(), &req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(res.Elements))
	}
	for i, el := range res.Elements {
		if el.Prompt != req.Prompts[i] || len(el.Outputs) != 3 {
			t.Fatalf("element %d: %+v", i, el)
		}
		for _, out := range el.Outputs {
			if out.Length < 1 || out.Length > 4 || out.Score != out.LogProb {
				t.Fatalf("element %d: bad output %+v", i, out)
			}
		}
	}

	again, err := e.Generate(context.Background(), &req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(res.Elements, again.Elements) {
		t.Fatal("fixed seed should reproduce the same samples")
	}
}

func TestEngineRejectsBadRequests(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 3, Logits: decodetest.Constant(0, 0, 0)}
	obs := &recordingObserver{}
	e := newEngine(t, m, obs)

	unknown := ResolveRequest(RequestOptions{Prompts: []string{"t1 nope"}}, Defaults{})
	if _, err := e.Generate(context.Background(), &unknown); !errors.Is(err, decode.ErrVocabMismatch) {
		t.Fatalf("expected ErrVocabMismatch, got %v", err)
	}
	empty := ResolveRequest(RequestOptions{Prompts: []string{"   "}}, Defaults{})
	if _, err := e.Generate(context.Background(), &empty); !errors.Is(err, decode.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	bad := ResolveRequest(RequestOptions{Prompts: []string{"t1"}, Temperature: ptr(0.0), Strategy: ptr(StrategySample)}, Defaults{})
	if _, err := e.Generate(context.Background(), &bad); !errors.Is(err, decode.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := e.Generate(context.Background(), nil); !errors.Is(err, decode.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if len(m.Calls()) != 0 {
		t.Fatalf("model should not run for rejected requests, got %v", m.Calls())
	}
	if len(obs.gens) != 3 {
		t.Fatalf("expected every non-nil request to be observed, got %d", len(obs.gens))
	}
}

func TestEngineObservesInvalidConfig(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 3, Logits: decodetest.Constant(0, 0, 0)}
	obs := &recordingObserver{}
	e := newEngine(t, m, obs)

	tests := []struct {
		name string
		opts RequestOptions
		want string
	}{
		{"zero_beams", RequestOptions{BeamSize: ptr(0)}, StrategyBeam},
		{"negative_alpha", RequestOptions{Alpha: ptr(-1.0)}, StrategyBeam},
		{"zero_temperature", RequestOptions{Strategy: ptr(StrategySample), Temperature: ptr(0.0)}, StrategySample},
		{"unknown_strategy", RequestOptions{Strategy: ptr("greedy")}, "greedy"},
		{"zero_results", RequestOptions{NumResults: ptr(0)}, StrategyBeam},
	}
	for _, tc := range tests {
		tc.opts.Prompts = []string{"t1"}
		req := ResolveRequest(tc.opts, Defaults{})
		if _, err := e.Generate(context.Background(), &req); !errors.Is(err, decode.ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}

	if len(obs.gens) != len(tests) {
		t.Fatalf("expected %d observed generations, got %d", len(tests), len(obs.gens))
	}
	for i, tc := range tests {
		if !errors.Is(obs.gens[i], decode.ErrInvalidConfig) || obs.strategies[i] != tc.want {
			t.Fatalf("%s: observed (%q, %v)", tc.name, obs.strategies[i], obs.gens[i])
		}
	}
}

func TestEngineTimeout(t *testing.T) {
	t.Parallel()

	m := &decodetest.Model{Vocab: 3, Logits: func([]int) []float32 {
		time.Sleep(20 * time.Millisecond)
		return []float32{1, 0, -5}
	}}
	e := newEngine(t, m, nil)

	req := ResolveRequest(RequestOptions{
		Prompts:   []string{"t0"},
		MaxLength: ptr(50),
		Timeout:   ptr(time.Millisecond),
	}, Defaults{})
	if _, err := e.Generate(context.Background(), &req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEngineModelErrorUnmodified(t *testing.T) {
	t.Parallel()

	boom := errors.New("device lost")
	m := &decodetest.Model{Vocab: 3, Logits: decodetest.Constant(1, 0, 0), FailAt: 1, Err: boom}
	e := newEngine(t, m, nil)

	req := ResolveRequest(RequestOptions{Prompts: []string{"t1"}}, Defaults{})
	res, err := e.Generate(context.Background(), &req)
	if err != boom || res != nil {
		t.Fatalf("expected the model error unmodified, got %v", err)
	}
}
