package pooling

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/htrlab/laia/pkg/engine"
)

// Method names the reduction applied along the collapsed image dimension.
type Method string

const (
	MethodNone    Method = "none"
	MethodMaxPool Method = "maxpool"
	MethodAvgPool Method = "avgpool"
)

var sequencerPattern = regexp.MustCompile(`^(none|maxpool|avgpool)-([1-9][0-9]*)$`)

// ImagePoolingSequencer converts [N][C][H][W] feature images into frame
// sequences. Columnwise sequencers emit one frame per column, collapsing the
// height to PoolSize; row-wise sequencers emit one frame per row.
type ImagePoolingSequencer struct {
	Method     Method
	PoolSize   int
	Columnwise bool
}

// NewImagePoolingSequencer parses a "<method>-<size>" description such as
// "avgpool-16" or "none-20".
func NewImagePoolingSequencer(spec string, columnwise bool) (*ImagePoolingSequencer, error) {
	m := sequencerPattern.FindStringSubmatch(spec)
	if m == nil {
		return nil, engine.NewInvalidArgumentError("sequencer", "unsupported sequencer %q", spec)
	}
	size, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, engine.NewInvalidArgumentError("sequencer", "invalid pool size in %q", spec)
	}
	return &ImagePoolingSequencer{
		Method:     Method(m[1]),
		PoolSize:   size,
		Columnwise: columnwise,
	}, nil
}

// String returns the description the sequencer was built from.
func (s *ImagePoolingSequencer) String() string {
	return fmt.Sprintf("%s-%d", s.Method, s.PoolSize)
}

// Apply sequences x. sizes optionally gives the valid (height, width) of each
// padded sample; nil means every sample spans the whole tensor.
func (s *ImagePoolingSequencer) Apply(x *Tensor4, sizes [][2]int) (*Sequence, error) {
	if x == nil {
		return nil, engine.NewInvalidArgumentError("x", "input tensor is required")
	}
	if err := x.validate(); err != nil {
		return nil, engine.NewInvalidArgumentError("x", "%v", err)
	}
	if sizes == nil {
		sizes = make([][2]int, x.N)
		for n := range sizes {
			sizes[n] = [2]int{x.H, x.W}
		}
	}
	if len(sizes) != x.N {
		return nil, engine.NewInvalidArgumentError("sizes", "got %d sizes for a batch of %d", len(sizes), x.N)
	}

	frames := make([][]float64, x.N)
	lengths := make([]int, x.N)
	maxLen := 0
	for n, hw := range sizes {
		h, w := hw[0], hw[1]
		if h <= 0 || w <= 0 || h > x.H || w > x.W {
			return nil, engine.NewInvalidArgumentError("sizes", "sample %d size %dx%d outside %dx%d", n, h, w, x.H, x.W)
		}

		outH, outW := s.PoolSize, w
		length, collapsed := w, h
		if !s.Columnwise {
			outH, outW = h, s.PoolSize
			length, collapsed = h, w
		}

		var pooled []float64
		switch s.Method {
		case MethodNone:
			if collapsed != s.PoolSize {
				return nil, engine.NewInvalidArgumentError("x",
					"sample %d has size %d along the pooled dimension, %s expects %d", n, collapsed, s, s.PoolSize)
			}
			pooled = adaptivePool(x, n, h, w, outH, outW, first)
		case MethodMaxPool:
			pooled = adaptivePool(x, n, h, w, outH, outW, Max)
		case MethodAvgPool:
			pooled = adaptivePool(x, n, h, w, outH, outW, Mean)
		default:
			return nil, engine.NewInvalidArgumentError("sequencer", "unsupported method %q", s.Method)
		}

		frames[n] = pooled
		lengths[n] = length
		if length > maxLen {
			maxLen = length
		}
	}

	dim := x.C * s.PoolSize
	data := make([][][]float64, maxLen)
	for t := range data {
		data[t] = make([][]float64, x.N)
		for n := range data[t] {
			data[t][n] = make([]float64, dim)
		}
	}

	for n, pooled := range frames {
		h, w := sizes[n][0], sizes[n][1]
		for c := 0; c < x.C; c++ {
			if s.Columnwise {
				for i := 0; i < s.PoolSize; i++ {
					for t := 0; t < w; t++ {
						data[t][n][c*s.PoolSize+i] = pooled[(c*s.PoolSize+i)*w+t]
					}
				}
				continue
			}
			for t := 0; t < h; t++ {
				for j := 0; j < s.PoolSize; j++ {
					data[t][n][c*s.PoolSize+j] = pooled[(c*h+t)*s.PoolSize+j]
				}
			}
		}
	}

	return &Sequence{Data: data, Lengths: lengths}, nil
}

// first is the identity reduction used when the pooled size already matches.
func first(bin []float64) float64 {
	return bin[0]
}
