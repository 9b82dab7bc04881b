package meters

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/agnivade/levenshtein"
)

// SequenceError accumulates the edit distance between reference and
// hypothesis sequences, normalized by the total reference length. Over
// characters this is the CER; over words, the WER.
type SequenceError struct {
	mu        sync.Mutex
	errors    int
	refLength int
}

// NewSequenceError creates an empty meter.
func NewSequenceError() *SequenceError {
	return &SequenceError{}
}

// Add accumulates a batch of reference/hypothesis pairs.
func (m *SequenceError) Add(refs, hyps [][]string) error {
	if len(refs) != len(hyps) {
		return fmt.Errorf("got %d references and %d hypotheses", len(refs), len(hyps))
	}
	errs, length := 0, 0
	for i := range refs {
		errs += EditDistance(refs[i], hyps[i])
		length += len(refs[i])
	}
	m.mu.Lock()
	m.errors += errs
	m.refLength += length
	m.mu.Unlock()
	return nil
}

// AddInts accumulates a batch of label id sequences.
func (m *SequenceError) AddInts(refs, hyps [][]int) error {
	return m.Add(intsToStrings(refs), intsToStrings(hyps))
}

// Errors returns the accumulated edit distance.
func (m *SequenceError) Errors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors
}

// RefLength returns the accumulated reference length.
func (m *SequenceError) RefLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refLength
}

// Value returns errors divided by reference length, or 0 before any
// reference symbol was seen.
func (m *SequenceError) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refLength == 0 {
		return 0
	}
	return float64(m.errors) / float64(m.refLength)
}

// Reset clears the accumulated counts.
func (m *SequenceError) Reset() {
	m.mu.Lock()
	m.errors, m.refLength = 0, 0
	m.mu.Unlock()
}

// EditDistance returns the Levenshtein distance between two symbol sequences.
// Symbols may be multi-character tokens; each distinct symbol is mapped to a
// single rune before comparing.
func EditDistance(a, b []string) int {
	alphabet := make(map[string]rune, len(a)+len(b))
	encode := func(seq []string) string {
		runes := make([]rune, len(seq))
		for i, sym := range seq {
			r, ok := alphabet[sym]
			if !ok {
				// Private use area, so the mapping never clashes with surrogates.
				r = rune(0xF0000 + len(alphabet))
				alphabet[sym] = r
			}
			runes[i] = r
		}
		return string(runes)
	}
	return levenshtein.ComputeDistance(encode(a), encode(b))
}

func intsToStrings(seqs [][]int) [][]string {
	out := make([][]string, len(seqs))
	for i, seq := range seqs {
		out[i] = make([]string, len(seq))
		for j, v := range seq {
			out[i][j] = strconv.Itoa(v)
		}
	}
	return out
}
