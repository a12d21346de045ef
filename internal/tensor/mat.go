// Package tensor holds the small float32 kernels behind the toy model.
package tensor

import (
	"fmt"
	"math/rand"
)

// Mat is a dense row-major float32 matrix with R rows of C columns.
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zeroed r x c matrix. Negative dimensions panic.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic(fmt.Sprintf("tensor: negative dimension %dx%d", r, c))
	}
	return Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// Row returns row i as a view into m.Data.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic(fmt.Sprintf("tensor: row %d out of range [0,%d)", i, m.R))
	}
	return m.Data[i*m.C : (i+1)*m.C]
}

// FillRand fills m with values drawn uniformly from [-scale, scale). The same
// seed always produces the same matrix.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * scale
	}
}
