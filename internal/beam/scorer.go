package beam

import "math"

// Scorer combines cumulative log-probabilities with a length penalty:
//
//	score = (cum + logp) / lp(length)
//	lp(length) = (Constant + length)^Alpha / (Constant + 1)^Alpha
//
// Alpha = 0 disables normalisation. Scorer holds no state; the zero value
// with Alpha 0 is a plain log-probability sum.
type Scorer struct {
	Alpha    float64
	Constant float64
}

// LengthPenalty returns lp(length).
func (s Scorer) LengthPenalty(length int) float64 {
	if s.Alpha == 0 {
		return 1
	}
	return math.Pow(s.Constant+float64(length), s.Alpha) / math.Pow(s.Constant+1, s.Alpha)
}

// Combine scores a single continuation.
func (s Scorer) Combine(cum, logProb float64, length int) float64 {
	return (cum + logProb) / s.LengthPenalty(length)
}

// Score returns the combined score of every continuation v of every
// hypothesis k, given the cumulative scores[k] and the step log-probabilities
// logProbs[k][v]. length is the hypothesis length after the continuation.
func (s Scorer) Score(scores []float64, logProbs [][]float64, length int) [][]float64 {
	inv := 1 / s.LengthPenalty(length)
	out := make([][]float64, len(logProbs))
	for k, row := range logProbs {
		combined := make([]float64, len(row))
		for v, lp := range row {
			combined[v] = (scores[k] + lp) * inv
		}
		out[k] = combined
	}
	return out
}
