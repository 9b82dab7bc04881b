package phoc

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/htrlab/laia/pkg/engine"
	"github.com/htrlab/laia/pkg/symbols"
)

func TestUnigram(t *testing.T) {
	syms := map[string]int{"a": 0, "b": 1}

	tests := []struct {
		name     string
		sequence []string
		levels   []int
		want     []uint8
	}{
		{"single level", []string{"a"}, []int{1}, []uint8{1, 0}},
		{"two levels", []string{"a", "b"}, []int{1, 2}, []uint8{1, 1, 1, 0, 0, 1}},
		{"repeated symbol", []string{"b", "b"}, []int{2}, []uint8{0, 1, 0, 1}},
		{"empty sequence", nil, []int{1, 2}, []uint8{0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unigram(tt.sequence, syms, tt.levels, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUnigramMissingSymbol(t *testing.T) {
	syms := map[string]int{"a": 0, "b": 1}

	_, err := Unigram([]string{"a", "z"}, syms, []int{1}, false)
	if !errors.Is(err, ErrMissingSymbol) {
		t.Fatalf("expected ErrMissingSymbol, got %v", err)
	}
	var missing *MissingSymbolError
	if !errors.As(err, &missing) || missing.Symbol != "z" || missing.Position != 1 {
		t.Errorf("unexpected error details: %+v", missing)
	}

	got, err := Unigram([]string{"a", "z"}, syms, []int{1}, true)
	if err != nil {
		t.Fatalf("unexpected error with ignoreMissing: %v", err)
	}
	if !reflect.DeepEqual(got, []uint8{1, 0}) {
		t.Errorf("expected missing symbol to be skipped, got %v", got)
	}
}

func TestUnigramInvalidLevels(t *testing.T) {
	_, err := Unigram([]string{"a"}, map[string]int{"a": 0}, []int{1, 0}, false)
	if !engine.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestProbabilisticRelevance(t *testing.T) {
	half := math.Log(0.5)

	got, err := ProbabilisticRelevance([]float64{half, half}, []float64{half, half})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 2 * half; math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Attributes certainly set on both sides are certainly relevant.
	got, err = ProbabilisticRelevance([]float64{0}, []float64{0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("expected log-probability 0, got %v", got)
	}

	// Certainly set versus certainly unset never matches.
	got, _ = ProbabilisticRelevance([]float64{0}, []float64{math.Inf(-1)})
	if !math.IsInf(got, -1) {
		t.Errorf("expected -Inf, got %v", got)
	}

	if _, err := ProbabilisticRelevance([]float64{0}, nil); !engine.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for length mismatch, got %v", err)
	}
}

func TestEncoder(t *testing.T) {
	table, _ := symbols.FromMap(map[string]int{"a": 0, "b": 1})

	enc, err := NewEncoder(table, []int{1, 2}, 2)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	if enc.Size() != 6 {
		t.Errorf("expected size 6, got %d", enc.Size())
	}

	want := []float64{1, 1, 1, 0, 0, 1}
	for i := 0; i < 2; i++ {
		got, err := enc.Encode("ab")
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		// Mutating the result must not poison the cache.
		got[0] = 42
	}

	if _, err := enc.Encode("abc"); !errors.Is(err, ErrMissingSymbol) {
		t.Errorf("expected ErrMissingSymbol, got %v", err)
	}

	lenient, _ := NewEncoder(table, []int{1}, 0, IgnoreMissing())
	got, err := lenient.Encode("cb")
	if err != nil {
		t.Fatalf("lenient encode failed: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{0, 1}) {
		t.Errorf("expected [0 1], got %v", got)
	}
}

func TestNewEncoderErrors(t *testing.T) {
	table, _ := symbols.FromMap(map[string]int{"a": 0})

	if _, err := NewEncoder(nil, []int{1}, 0); !engine.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for nil table, got %v", err)
	}
	if _, err := NewEncoder(symbols.NewTable(), []int{1}, 0); !engine.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for empty table, got %v", err)
	}
	if _, err := NewEncoder(table, nil, 0); !engine.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for no levels, got %v", err)
	}
}

func TestEncoderBatchTarget(t *testing.T) {
	table, _ := symbols.FromMap(map[string]int{"a": 0, "b": 1})
	enc, _ := NewEncoder(table, []int{1}, 0)

	model := engine.ModelFunc(func(in interface{}) (interface{}, error) { return in, nil })
	source := engine.SliceSource{[]string{"a", "b"}, []string{"ab"}}

	var targets []interface{}
	e, err := engine.New(model, source, engine.WithBatchTarget(enc.BatchTarget(func(batch interface{}) ([]string, error) {
		return batch.([]string), nil
	})))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	e.AddHookFunc(engine.BatchEnd, func(ev engine.Event) error {
		targets = append(targets, ev.BatchTarget)
		return nil
	})
	if _, err := e.Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []interface{}{
		[][]float64{{1, 0}, {0, 1}},
		[][]float64{{1, 1}},
	}
	if !reflect.DeepEqual(targets, want) {
		t.Errorf("expected %v, got %v", want, targets)
	}
}
