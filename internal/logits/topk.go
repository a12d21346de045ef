package logits

// TopK returns the indices of the k largest scores ordered from largest to
// smallest. Equal scores keep their original order, so the earliest index
// wins a tie. This is an O(N*K) insertion selection suitable for small k.
func TopK(scores []float64, k int) []int {
	k = min(k, len(scores))
	if k <= 0 {
		return nil
	}
	topIdx := make([]int, 0, k+1)
	topVal := make([]float64, 0, k+1)

	for i, v := range scores {
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	return topIdx
}
