package htr

import (
	"fmt"

	"github.com/htrlab/laia/pkg/decoders"
	"github.com/htrlab/laia/pkg/pooling"
)

// Decoder turns a model output into one label sequence per sample.
type Decoder interface {
	Decode(output interface{}) ([][]int, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(output interface{}) ([][]int, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(output interface{}) ([][]int, error) {
	return f(output)
}

// CTCGreedyDecoder decodes frame posteriors with best-path CTC decoding.
// Outputs may be batch-major [N][T][K] slices or time-major padded
// *pooling.Sequence values.
type CTCGreedyDecoder struct {
	Blank int
}

// Decode implements Decoder.
func (d CTCGreedyDecoder) Decode(output interface{}) ([][]int, error) {
	switch out := output.(type) {
	case [][][]float64:
		return decoders.CTCGreedyBatch(out, nil, d.Blank)
	case *pooling.Sequence:
		if out == nil {
			return nil, fmt.Errorf("nil sequence output")
		}
		batch := make([][][]float64, len(out.Lengths))
		for n, length := range out.Lengths {
			if length > len(out.Data) {
				return nil, fmt.Errorf("sample %d length %d exceeds %d frames", n, length, len(out.Data))
			}
			batch[n] = make([][]float64, length)
			for t := 0; t < length; t++ {
				batch[n][t] = out.Data[t][n]
			}
		}
		return decoders.CTCGreedyBatch(batch, nil, d.Blank)
	default:
		return nil, fmt.Errorf("cannot decode output of type %T", output)
	}
}
