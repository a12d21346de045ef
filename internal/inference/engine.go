// Package inference runs prompts through a model with a decoding strategy and
// turns the resulting hypotheses back into text.
package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/loom/internal/decode"
	"github.com/samcharles93/loom/internal/logger"
)

// Engine owns one model and its tokenizer. It is safe for concurrent use
// when the model's Forward is; each call builds its own strategy and states.
type Engine struct {
	name     string
	model    decode.Model
	tok      Tokenizer
	adapter  *decode.Adapter
	observer Observer
}

type Option func(*Engine)

// WithObserver reports steps and generations to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine checks the model against the tokenizer and returns an Engine.
func NewEngine(name string, m decode.Model, tok Tokenizer, opts ...Option) (*Engine, error) {
	adapter, err := decode.NewAdapter(m, tok)
	if err != nil {
		return nil, err
	}
	e := &Engine{name: name, model: m, tok: tok, adapter: adapter}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) Tokenizer() Tokenizer { return e.tok }

// Generate decodes every prompt of req as one batch. Failures abort the whole
// batch; no partial result is returned.
func (e *Engine) Generate(ctx context.Context, req *Request) (res *Result, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", decode.ErrInvalidConfig)
	}

	start := time.Now()
	if e.observer != nil {
		defer func() { e.observer.ObserveGeneration(req.Strategy, time.Since(start), err) }()
	}

	strategy, err := req.NewStrategy()
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	log := logger.FromContext(ctx).With("engine", e.name, "strategy", strategy.Name())

	seeds := make([]decode.Seed, len(req.Prompts))
	for i, prompt := range req.Prompts {
		ids, err := safeEncode(e.tok, prompt)
		if err != nil {
			return nil, fmt.Errorf("encode prompt %d: %w", i, err)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: prompt %d is empty", decode.ErrInvalidConfig, i)
		}
		seeds[i], err = e.adapter.Prefill(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	counter := &countingStepper{Stepper: e.adapter, strategy: strategy.Name(), observer: e.observer}
	hyps, err := strategy.Generate(ctx, counter, seeds)
	if err != nil {
		return nil, err
	}

	res = &Result{Strategy: strategy.Name(), Elements: make([]Element, len(hyps))}
	for i, elem := range hyps {
		n := min(req.NumResults, len(elem))
		outputs := make([]Output, n)
		for j, h := range elem[:n] {
			outputs[j] = Output{
				Tokens:   h.Tokens,
				Text:     e.tok.Decode(h.Tokens),
				Score:    h.Score,
				LogProb:  h.LogProb,
				Length:   h.Length,
				Finished: h.Finished,
			}
		}
		res.Elements[i] = Element{Prompt: req.Prompts[i], Outputs: outputs}
	}

	res.Stats = Stats{Steps: counter.steps, BeamSteps: counter.beams, Duration: time.Since(start)}
	if secs := res.Stats.Duration.Seconds(); secs > 0 {
		res.Stats.BPS = float64(res.Stats.BeamSteps) / secs
	}
	log.Info("generation complete",
		"prompts", len(req.Prompts),
		"steps", res.Stats.Steps,
		"beam_steps", res.Stats.BeamSteps,
		"duration", res.Stats.Duration,
	)
	return res, nil
}

// countingStepper counts the decode steps a strategy takes.
type countingStepper struct {
	decode.Stepper
	strategy string
	observer Observer

	steps int
	beams int
}

func (c *countingStepper) Step(ctx context.Context, tokens []int, states []decode.State) ([][]float32, []decode.State, error) {
	c.steps++
	c.beams += len(tokens)
	if c.observer != nil {
		c.observer.ObserveStep(c.strategy, len(tokens))
	}
	return c.Stepper.Step(ctx, tokens, states)
}

func safeEncode(tok Tokenizer, text string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(text)
}
