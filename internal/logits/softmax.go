package logits

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrDegenerate reports logits that do not define a probability distribution
// (NaN values, or no finite mass after temperature scaling).
var ErrDegenerate = errors.New("degenerate distribution")

// LogSoftmax writes log(softmax(logits * invTemp)) into dst and returns it.
// dst is grown when too small. The normaliser is computed with a max-shifted
// log-sum-exp so large logits do not overflow.
func LogSoftmax(dst []float64, logits []float32, invTemp float64) ([]float64, error) {
	if len(logits) == 0 {
		return dst[:0], fmt.Errorf("%w: empty logits", ErrDegenerate)
	}
	if cap(dst) < len(logits) {
		dst = make([]float64, len(logits))
	}
	dst = dst[:len(logits)]
	for i, l := range logits {
		v := float64(l) * invTemp
		if math.IsNaN(v) {
			return dst, fmt.Errorf("%w: NaN logit at %d", ErrDegenerate, i)
		}
		dst[i] = v
	}
	lse := floats.LogSumExp(dst)
	if math.IsInf(lse, 0) || math.IsNaN(lse) {
		return dst, fmt.Errorf("%w: log-sum-exp is %v", ErrDegenerate, lse)
	}
	floats.AddConst(-lse, dst)
	return dst, nil
}

// Softmax converts log-probabilities into probabilities in place.
func Softmax(logProbs []float64) {
	for i, v := range logProbs {
		logProbs[i] = math.Exp(v)
	}
}

// Argmax returns the index of the largest value, the lowest index on ties.
// It panics on an empty slice.
func Argmax(x []float64) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	return floats.MaxIdx(x)
}
