package symbols

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	input := `# symbols
<ctc> 0
a 1

b 2
c 3
`
	table, err := Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("failed to load table: %v", err)
	}
	if table.Len() != 4 {
		t.Fatalf("expected 4 symbols, got %d", table.Len())
	}
	if id, ok := table.ID("b"); !ok || id != 2 {
		t.Errorf("expected b=2, got %d (%v)", id, ok)
	}
	if sym, ok := table.Symbol(0); !ok || sym != "<ctc>" {
		t.Errorf("expected id 0 to be <ctc>, got %q (%v)", sym, ok)
	}
	if _, ok := table.ID("z"); ok {
		t.Error("unexpected id for unknown symbol")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing id", "a\n"},
		{"bad id", "a x\n"},
		{"duplicate symbol", "a 1\na 2\n"},
		{"duplicate id", "a 1\nb 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.input)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	table, err := FromMap(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	var buf bytes.Buffer
	if err := table.Save(&buf); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if got, want := buf.String(), "a 1\nb 2\nc 3\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if !reflect.DeepEqual(loaded.Map(), table.Map()) {
		t.Errorf("round trip mismatch: %v vs %v", loaded.Map(), table.Map())
	}
}

func TestDecode(t *testing.T) {
	table, _ := FromMap(map[string]int{"h": 1, "i": 2})
	if got := table.Decode([]int{1, 2, 9, 1}); !reflect.DeepEqual(got, []string{"h", "i", "h"}) {
		t.Errorf("unexpected decode: %v", got)
	}
}
