package phoc

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/htrlab/laia/pkg/engine"
	"github.com/htrlab/laia/pkg/symbols"
)

// DefaultCacheSize is the number of encodings kept by an Encoder.
const DefaultCacheSize = 4096

// Encoder turns text into PHOC vectors over a fixed symbols table.
// Encodings are memoized, since vocabularies repeat heavily across epochs.
type Encoder struct {
	symbols       map[string]int
	levels        []int
	ignoreMissing bool
	cache         *lru.Cache
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// IgnoreMissing skips symbols that are not in the table instead of failing.
func IgnoreMissing() EncoderOption {
	return func(e *Encoder) {
		e.ignoreMissing = true
	}
}

// NewEncoder creates an encoder. cacheSize <= 0 uses DefaultCacheSize.
func NewEncoder(table *symbols.Table, levels []int, cacheSize int, opts ...EncoderOption) (*Encoder, error) {
	if table == nil || table.Len() == 0 {
		return nil, engine.NewInvalidArgumentError("symbols", "a non-empty symbols table is required")
	}
	if len(levels) == 0 {
		return nil, engine.NewInvalidArgumentError("levels", "at least one pyramid level is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create phoc cache: %w", err)
	}

	e := &Encoder{
		symbols: table.Map(),
		levels:  append([]int(nil), levels...),
		cache:   cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Size returns the length of the vectors produced by Encode.
func (e *Encoder) Size() int {
	return Size(len(e.symbols), e.levels)
}

// Encode returns the PHOC of text, one symbol per rune.
func (e *Encoder) Encode(text string) ([]float64, error) {
	if v, ok := e.cache.Get(text); ok {
		return append([]float64(nil), v.([]float64)...), nil
	}

	runes := []rune(text)
	seq := make([]string, len(runes))
	for i, r := range runes {
		seq[i] = string(r)
	}

	bits, err := Unigram(seq, e.symbols, e.levels, e.ignoreMissing)
	if err != nil {
		return nil, err
	}

	vec := make([]float64, len(bits))
	for i, b := range bits {
		vec[i] = float64(b)
	}
	e.cache.Add(text, vec)
	return append([]float64(nil), vec...), nil
}

// BatchTarget returns an engine extractor that encodes the text returned by
// textOf for each batch.
func (e *Encoder) BatchTarget(textOf func(batch interface{}) ([]string, error)) engine.ExtractFunc {
	return func(batch interface{}) (interface{}, error) {
		texts, err := textOf(batch)
		if err != nil {
			return nil, err
		}
		out := make([][]float64, len(texts))
		for i, text := range texts {
			v, err := e.Encode(text)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}
