// Package decoders turns per-frame label posteriors produced by CTC-trained
// models into label sequences.
package decoders

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/htrlab/laia/pkg/engine"
)

// DefaultBlank is the label conventionally reserved for the CTC blank.
const DefaultBlank = 0

// CTCGreedy picks the best label of every frame, collapses consecutive
// repetitions and removes blanks.
func CTCGreedy(frames [][]float64, blank int) []int {
	out := []int{}
	prev := -1
	for _, frame := range frames {
		if len(frame) == 0 {
			prev = -1
			continue
		}
		label := floats.MaxIdx(frame)
		if label != prev && label != blank {
			out = append(out, label)
		}
		prev = label
	}
	return out
}

// CTCGreedyBatch decodes a batch laid out as [N][T][K]. When lengths is not
// nil, only the first lengths[n] frames of sample n are decoded.
func CTCGreedyBatch(batch [][][]float64, lengths []int, blank int) ([][]int, error) {
	if lengths != nil && len(lengths) != len(batch) {
		return nil, engine.NewInvalidArgumentError("lengths", "got %d lengths for a batch of %d", len(lengths), len(batch))
	}
	out := make([][]int, len(batch))
	for n, frames := range batch {
		if lengths != nil {
			if lengths[n] < 0 || lengths[n] > len(frames) {
				return nil, engine.NewInvalidArgumentError("lengths", "sample %d length %d outside [0, %d]", n, lengths[n], len(frames))
			}
			frames = frames[:lengths[n]]
		}
		out[n] = CTCGreedy(frames, blank)
	}
	return out, nil
}

// CTCAlignment returns the most likely frame-level alignment of ref to the
// log-posteriors logp ([T][K]) under the CTC topology, together with its
// log-probability.
func CTCAlignment(logp [][]float64, ref []int, blank int) (float64, []int, error) {
	numFrames := len(logp)
	if numFrames == 0 {
		return 0, nil, engine.NewInvalidArgumentError("logp", "at least one frame is required")
	}
	numLabels := len(logp[0])
	for t, frame := range logp {
		if len(frame) != numLabels {
			return 0, nil, engine.NewInvalidArgumentError("logp", "frame %d has %d labels, expected %d", t, len(frame), numLabels)
		}
	}
	if blank < 0 || blank >= numLabels {
		return 0, nil, engine.NewInvalidArgumentError("blank", "blank %d outside [0, %d)", blank, numLabels)
	}

	// Reference interleaved with blanks: b l1 b l2 ... lL b.
	ext := make([]int, 2*len(ref)+1)
	minFrames := len(ref)
	for i, label := range ref {
		if label < 0 || label >= numLabels {
			return 0, nil, engine.NewInvalidArgumentError("ref", "label %d outside [0, %d)", label, numLabels)
		}
		if i > 0 && ref[i-1] == label {
			minFrames++
		}
		ext[2*i] = blank
		ext[2*i+1] = label
	}
	ext[len(ext)-1] = blank
	if minFrames > numFrames {
		return 0, nil, engine.NewInvalidArgumentError("ref",
			"reference needs at least %d frames, got %d", minFrames, numFrames)
	}

	numStates := len(ext)
	negInf := math.Inf(-1)
	score := make([]float64, numStates)
	next := make([]float64, numStates)
	back := make([][]int, numFrames)

	for s := range score {
		score[s] = negInf
	}
	score[0] = logp[0][ext[0]]
	if numStates > 1 {
		score[1] = logp[0][ext[1]]
	}
	back[0] = make([]int, numStates)

	for t := 1; t < numFrames; t++ {
		back[t] = make([]int, numStates)
		for s := 0; s < numStates; s++ {
			best, from := score[s], s
			if s > 0 && score[s-1] > best {
				best, from = score[s-1], s-1
			}
			if s > 1 && ext[s] != blank && ext[s] != ext[s-2] && score[s-2] > best {
				best, from = score[s-2], s-2
			}
			next[s] = best + logp[t][ext[s]]
			back[t][s] = from
		}
		score, next = next, score
	}

	last := numStates - 1
	if numStates > 1 && score[numStates-2] > score[last] {
		last = numStates - 2
	}

	alignment := make([]int, numFrames)
	s := last
	for t := numFrames - 1; t >= 0; t-- {
		alignment[t] = ext[s]
		s = back[t][s]
	}
	return score[last], alignment, nil
}
