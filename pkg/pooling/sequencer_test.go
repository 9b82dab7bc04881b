package pooling

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/htrlab/laia/pkg/engine"
)

func randomTensor(n, c, h, w int) *Tensor4 {
	r := rand.New(rand.NewSource(1))
	x := NewTensor4(n, c, h, w)
	for i := range x.Data {
		x.Data[i] = r.NormFloat64()
	}
	return x
}

func TestNewImagePoolingSequencerBadSpecs(t *testing.T) {
	for _, spec := range []string{"", "foo", "maxpool", "avgpool-", "maxpool-c", "none-0", "avgpool-3x"} {
		if _, err := NewImagePoolingSequencer(spec, true); !engine.IsInvalidArgument(err) {
			t.Errorf("spec %q: expected invalid argument, got %v", spec, err)
		}
	}
}

func TestNewImagePoolingSequencer(t *testing.T) {
	s, err := NewImagePoolingSequencer("avgpool-16", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Method != MethodAvgPool || s.PoolSize != 16 || s.Columnwise {
		t.Errorf("unexpected sequencer: %+v", s)
	}
	if s.String() != "avgpool-16" {
		t.Errorf("unexpected string: %s", s)
	}
}

func TestApplyShapes(t *testing.T) {
	x := randomTensor(2, 3, 10, 11)

	for _, method := range []string{"none", "maxpool", "avgpool"} {
		t.Run(method+"-col", func(t *testing.T) {
			s, _ := NewImagePoolingSequencer(method+"-10", true)
			y, err := s.Apply(x, nil)
			if err != nil {
				t.Fatalf("apply failed: %v", err)
			}
			tt, n, d := y.Dims()
			if got, want := []int{tt, n, d}, []int{11, 2, 30}; !reflect.DeepEqual(got, want) {
				t.Errorf("expected dims %v, got %v", want, got)
			}
		})
		t.Run(method+"-row", func(t *testing.T) {
			s, _ := NewImagePoolingSequencer(method+"-11", false)
			y, err := s.Apply(x, nil)
			if err != nil {
				t.Fatalf("apply failed: %v", err)
			}
			tt, n, d := y.Dims()
			if got, want := []int{tt, n, d}, []int{10, 2, 33}; !reflect.DeepEqual(got, want) {
				t.Errorf("expected dims %v, got %v", want, got)
			}
		})
	}
}

func TestApplyNoneSizeMismatch(t *testing.T) {
	x := randomTensor(2, 3, 4, 5)
	for _, columnwise := range []bool{true, false} {
		s, _ := NewImagePoolingSequencer("none-9", columnwise)
		if _, err := s.Apply(x, nil); !engine.IsInvalidArgument(err) {
			t.Errorf("columnwise=%v: expected invalid argument, got %v", columnwise, err)
		}
	}
}

func TestApplyNoneKeepsValues(t *testing.T) {
	x := NewTensor4(1, 2, 2, 3)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}

	s, _ := NewImagePoolingSequencer("none-2", true)
	y, err := s.Apply(x, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	// Frame t holds column t of every channel, channel-major.
	want := [][][]float64{
		{{0, 3, 6, 9}},
		{{1, 4, 7, 10}},
		{{2, 5, 8, 11}},
	}
	if !reflect.DeepEqual(y.Data, want) {
		t.Errorf("expected %v, got %v", want, y.Data)
	}
}

func TestApplyPoolingValues(t *testing.T) {
	x := NewTensor4(1, 1, 4, 2)
	copy(x.Data, []float64{
		1, 2,
		3, 4,
		5, 6,
		7, 8,
	})

	avg, _ := NewImagePoolingSequencer("avgpool-2", true)
	y, err := avg.Apply(x, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := [][][]float64{{{2, 6}}, {{3, 7}}}; !reflect.DeepEqual(y.Data, want) {
		t.Errorf("avgpool: expected %v, got %v", want, y.Data)
	}

	max, _ := NewImagePoolingSequencer("maxpool-1", false)
	y, err = max.Apply(x, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := [][][]float64{{{2}}, {{4}}, {{6}}, {{8}}}; !reflect.DeepEqual(y.Data, want) {
		t.Errorf("maxpool: expected %v, got %v", want, y.Data)
	}
}

func TestApplyPaddedSizes(t *testing.T) {
	x := randomTensor(3, 4, 17, 19)
	sizes := [][2]int{{17, 19}, {11, 13}, {13, 11}}

	s, _ := NewImagePoolingSequencer("maxpool-10", true)
	y, err := s.Apply(x, sizes)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !reflect.DeepEqual(y.Lengths, []int{19, 13, 11}) {
		t.Errorf("unexpected lengths: %v", y.Lengths)
	}
	if tt, n, d := y.Dims(); tt != 19 || n != 3 || d != 40 {
		t.Errorf("unexpected dims: %d %d %d", tt, n, d)
	}

	// Each sample matches pooling its own crop.
	for k, hw := range sizes {
		crop := NewTensor4(1, x.C, hw[0], hw[1])
		for c := 0; c < x.C; c++ {
			for i := 0; i < hw[0]; i++ {
				for j := 0; j < hw[1]; j++ {
					crop.Set(0, c, i, j, x.At(k, c, i, j))
				}
			}
		}
		pooled := AdaptiveMaxPool2D(crop, 10, hw[1])
		for tt := 0; tt < 19; tt++ {
			for c := 0; c < x.C; c++ {
				for i := 0; i < 10; i++ {
					want := 0.0
					if tt < hw[1] {
						want = pooled.At(0, c, i, tt)
					}
					if got := y.Data[tt][k][c*10+i]; got != want {
						t.Fatalf("sample %d frame %d feature %d: expected %v, got %v", k, tt, c*10+i, want, got)
					}
				}
			}
		}
	}
}

func TestApplyInvalidSizes(t *testing.T) {
	x := randomTensor(2, 1, 4, 4)
	s, _ := NewImagePoolingSequencer("avgpool-2", true)

	tests := [][][2]int{
		{{4, 4}},
		{{4, 4}, {5, 4}},
		{{4, 4}, {0, 4}},
	}
	for _, sizes := range tests {
		if _, err := s.Apply(x, sizes); !engine.IsInvalidArgument(err) {
			t.Errorf("sizes %v: expected invalid argument, got %v", sizes, err)
		}
	}
	if _, err := s.Apply(nil, nil); !engine.IsInvalidArgument(err) {
		t.Errorf("nil tensor: expected invalid argument, got %v", err)
	}
}

func TestAdaptiveAvgPool2D(t *testing.T) {
	x := NewTensor4(1, 1, 3, 3)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	// Overlapping bins: rows/cols {0,1} and {1,2}.
	y := AdaptiveAvgPool2D(x, 2, 2)
	want := []float64{2, 3, 5, 6}
	if !reflect.DeepEqual(y.Data, want) {
		t.Errorf("expected %v, got %v", want, y.Data)
	}
}
