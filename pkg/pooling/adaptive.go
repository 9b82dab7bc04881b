package pooling

import (
	"gonum.org/v1/gonum/floats"
)

// Reducer collapses the values of one pooling bin into a single value.
type Reducer func(bin []float64) float64

// Mean averages a bin.
func Mean(bin []float64) float64 {
	return floats.Sum(bin) / float64(len(bin))
}

// Max takes the largest value of a bin.
func Max(bin []float64) float64 {
	return floats.Max(bin)
}

func binStart(i, in, out int) int {
	return i * in / out
}

func binEnd(i, in, out int) int {
	return ((i+1)*in + out - 1) / out
}

// adaptivePool pools the top-left h x w region of sample n to outH x outW
// and returns it as [C][outH][outW].
func adaptivePool(x *Tensor4, n, h, w, outH, outW int, reduce Reducer) []float64 {
	out := make([]float64, x.C*outH*outW)
	bin := make([]float64, 0, 16)
	for c := 0; c < x.C; c++ {
		for oh := 0; oh < outH; oh++ {
			h0, h1 := binStart(oh, h, outH), binEnd(oh, h, outH)
			for ow := 0; ow < outW; ow++ {
				w0, w1 := binStart(ow, w, outW), binEnd(ow, w, outW)
				bin = bin[:0]
				for i := h0; i < h1; i++ {
					for j := w0; j < w1; j++ {
						bin = append(bin, x.At(n, c, i, j))
					}
				}
				out[(c*outH+oh)*outW+ow] = reduce(bin)
			}
		}
	}
	return out
}

// AdaptiveAvgPool2D average-pools every sample of x to outH x outW.
func AdaptiveAvgPool2D(x *Tensor4, outH, outW int) *Tensor4 {
	return adaptivePool2D(x, outH, outW, Mean)
}

// AdaptiveMaxPool2D max-pools every sample of x to outH x outW.
func AdaptiveMaxPool2D(x *Tensor4, outH, outW int) *Tensor4 {
	return adaptivePool2D(x, outH, outW, Max)
}

func adaptivePool2D(x *Tensor4, outH, outW int, reduce Reducer) *Tensor4 {
	y := NewTensor4(x.N, x.C, outH, outW)
	if x.H == 0 || x.W == 0 {
		return y
	}
	stride := x.C * outH * outW
	for n := 0; n < x.N; n++ {
		copy(y.Data[n*stride:(n+1)*stride], adaptivePool(x, n, x.H, x.W, outH, outW, reduce))
	}
	return y
}
