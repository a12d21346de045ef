package logits

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	// Seed fixes the random sequence. Negative seeds draw from the clock.
	Seed        int64
	Temperature float64
}

// Sampler draws token ids from temperature-scaled logits. It is not safe for
// concurrent use; the draw order defines the random sequence.
type Sampler struct {
	rng     *rand.Rand
	invTemp float64
	logp    []float64
	prob    []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if !(cfg.Temperature > 0) || math.IsInf(cfg.Temperature, 0) {
		return nil, fmt.Errorf("temperature must be a positive finite number, got %v", cfg.Temperature)
	}
	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{
		rng:     rand.New(rand.NewSource(seed)),
		invTemp: 1 / cfg.Temperature,
	}, nil
}

// Sample draws a single index from the provided logits vector and returns it
// with its log-probability under the scaled distribution. The process is:
//
//  1. Scale the logits by the inverse temperature.
//  2. Normalise with a log-softmax.
//  3. Draw r from [0,1) and walk the cumulative distribution until it
//     exceeds r. Zero-probability entries can never be selected.
func (s *Sampler) Sample(logits []float32) (int, float64, error) {
	logp, err := LogSoftmax(s.logp, logits, s.invTemp)
	s.logp = logp
	if err != nil {
		return 0, 0, err
	}

	if cap(s.prob) < len(logp) {
		s.prob = make([]float64, len(logp))
	}
	prob := s.prob[:len(logp)]
	copy(prob, logp)
	Softmax(prob)

	r := s.rng.Float64()
	var c float64
	last := -1
	for i, p := range prob {
		if p == 0 {
			continue
		}
		last = i
		c += p
		if r < c {
			return i, logp[i], nil
		}
	}
	// Rounding can leave the cumulative sum just below r.
	if last < 0 {
		return 0, 0, fmt.Errorf("%w: all probabilities underflowed to zero", ErrDegenerate)
	}
	return last, logp[last], nil
}
