// Package phoc computes Pyramidal Histograms Of Characters (PHOC), a binary
// attribute encoding of symbol sequences used for word spotting.
package phoc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/htrlab/laia/pkg/engine"
)

// ErrMissingSymbol is matched by every MissingSymbolError.
var ErrMissingSymbol = errors.New("symbol not found in the unigram map")

// MissingSymbolError reports a symbol with no assigned code.
type MissingSymbolError struct {
	Symbol   string
	Position int
}

// Error implements the error interface.
func (e *MissingSymbolError) Error() string {
	return fmt.Sprintf("unigram %q (position %d) was not found in the unigram map", e.Symbol, e.Position)
}

// Is makes errors.Is(err, ErrMissingSymbol) true.
func (e *MissingSymbolError) Is(target error) bool {
	return target == ErrMissingSymbol
}

// Size returns the PHOC length for an alphabet of numSymbols and the given levels.
func Size(numSymbols int, levels []int) int {
	total := 0
	for _, l := range levels {
		total += l
	}
	return numSymbols * total
}

type interval struct {
	lo, hi float64
}

func occupancy(i, n int) interval {
	return interval{float64(i) / float64(n), float64(i+1) / float64(n)}
}

func (a interval) overlap(b interval) interval {
	return interval{math.Max(a.lo, b.lo), math.Min(a.hi, b.hi)}
}

func (a interval) size() float64 {
	return a.hi - a.lo
}

// Unigram computes the PHOC of a sequence of symbols.
//
// Level l of the pyramid splits the sequence into l regions; a symbol is
// assigned to every region that covers at least half of its own extent. The
// result concatenates the histograms of every level, each holding one
// len(symbols)-sized block per region.
//
// Symbols missing from the map return a *MissingSymbolError, unless
// ignoreMissing is set, in which case they are skipped.
func Unigram(sequence []string, symbols map[string]int, levels []int, ignoreMissing bool) ([]uint8, error) {
	for _, l := range levels {
		if l <= 0 {
			return nil, engine.NewInvalidArgumentError("levels", "pyramid levels must be positive, got %d", l)
		}
	}

	nsym := len(symbols)
	out := make([]uint8, Size(nsym, levels))

	levelOffset := make([]int, len(levels))
	for j := 1; j < len(levels); j++ {
		levelOffset[j] = levelOffset[j-1] + levels[j-1]*nsym
	}

	n := len(sequence)
	for i, sym := range sequence {
		code, ok := symbols[sym]
		if !ok {
			if ignoreMissing {
				continue
			}
			return nil, &MissingSymbolError{Symbol: sym, Position: i}
		}
		if code < 0 || code >= nsym {
			return nil, engine.NewInvalidArgumentError("symbols", "code %d of %q is outside [0, %d)", code, sym, nsym)
		}

		occ := occupancy(i, n)
		for j, level := range levels {
			for region := 0; region < level; region++ {
				if occ.overlap(occupancy(region, level)).size()/occ.size() >= 0.5 {
					out[levelOffset[j]+region*nsym+code] = 1
				}
			}
		}
	}
	return out, nil
}

// ProbabilisticRelevance computes log p(R=1 | a, b) = sum_i log sum_h p(h_i|a) p(h_i|b),
// where a and b hold log-probabilities of each PHOC attribute being set.
func ProbabilisticRelevance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, engine.NewInvalidArgumentError("b", "length mismatch: %d != %d", len(a), len(b))
	}

	pair := make([]float64, 2)
	var result float64
	for i := range a {
		pair[0] = math.Log(-math.Expm1(a[i])) + math.Log(-math.Expm1(b[i]))
		pair[1] = a[i] + b[i]
		result += floats.LogSumExp(pair)
	}
	return result, nil
}
