package tensor

import (
	"runtime"
	"sync"
)

// parallelRows is the row count below which MatVec stays on the calling
// goroutine.
const parallelRows = 512

// MatVec computes dst = w * x where w is a matrix and x is a vector.
// Large matrices are split into row ranges computed in parallel; every row is
// written by exactly one goroutine so the result does not depend on scheduling.
func MatVec(dst []float32, w *Mat, x []float32) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}

	workers := min(runtime.GOMAXPROCS(0), w.R)
	if workers <= 1 || w.R < parallelRows {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	chunk := (w.R + workers - 1) / workers
	var wg sync.WaitGroup
	for i := range workers {
		rs := i * chunk
		re := min(rs+chunk, w.R)
		if rs >= re {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			matVecRange(dst, w, x, rs, re)
		}()
	}
	wg.Wait()
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		dst[i] = Dot(w.Row(i), x[:w.C])
	}
}
