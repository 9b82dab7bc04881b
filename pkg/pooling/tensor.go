// Package pooling turns batches of feature images into frame sequences, as
// done between the convolutional and recurrent parts of an HTR model.
package pooling

import (
	"fmt"
)

// Tensor4 is a dense [N][C][H][W] tensor stored in row-major order.
type Tensor4 struct {
	N, C, H, W int
	Data       []float64
}

// NewTensor4 allocates a zeroed tensor.
func NewTensor4(n, c, h, w int) *Tensor4 {
	return &Tensor4{N: n, C: c, H: h, W: w, Data: make([]float64, n*c*h*w)}
}

// Shape returns the four dimensions.
func (t *Tensor4) Shape() [4]int {
	return [4]int{t.N, t.C, t.H, t.W}
}

func (t *Tensor4) index(n, c, h, w int) int {
	return ((n*t.C+c)*t.H+h)*t.W + w
}

// At returns the element at (n, c, h, w).
func (t *Tensor4) At(n, c, h, w int) float64 {
	return t.Data[t.index(n, c, h, w)]
}

// Set stores v at (n, c, h, w).
func (t *Tensor4) Set(n, c, h, w int, v float64) {
	t.Data[t.index(n, c, h, w)] = v
}

func (t *Tensor4) validate() error {
	if t.N < 0 || t.C < 0 || t.H < 0 || t.W < 0 {
		return fmt.Errorf("negative tensor shape %v", t.Shape())
	}
	if len(t.Data) != t.N*t.C*t.H*t.W {
		return fmt.Errorf("tensor data has %d elements, shape %v needs %d", len(t.Data), t.Shape(), t.N*t.C*t.H*t.W)
	}
	return nil
}

// Sequence is a padded batch of frame sequences laid out as [T][N][D].
type Sequence struct {
	Data    [][][]float64
	Lengths []int
}

// Dims returns (T, N, D).
func (s *Sequence) Dims() (int, int, int) {
	t := len(s.Data)
	if t == 0 {
		return 0, len(s.Lengths), 0
	}
	n := len(s.Data[0])
	if n == 0 {
		return t, 0, 0
	}
	return t, n, len(s.Data[0][0])
}
