// Package symbols maps recognition symbols (characters, tokens) to integer ids.
package symbols

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Table is a bidirectional mapping between symbols and ids.
type Table struct {
	sym2id map[string]int
	id2sym map[int]string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		sym2id: make(map[string]int),
		id2sym: make(map[int]string),
	}
}

// FromMap builds a table from a symbol to id map.
func FromMap(m map[string]int) (*Table, error) {
	t := NewTable()
	for sym, id := range m {
		if err := t.Add(sym, id); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Load reads a table from lines of the form "<symbol> <id>".
// Empty lines and lines starting with '#' are skipped.
func Load(r io.Reader) (*Table, error) {
	t := NewTable()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected \"<symbol> <id>\", got %q", lineNo, line)
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id %q: %w", lineNo, fields[1], err)
		}
		if err := t.Add(fields[0], id); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read symbols table: %w", err)
	}
	return t, nil
}

// Add inserts a symbol with the given id. Both must be unused.
func (t *Table) Add(sym string, id int) error {
	if sym == "" {
		return fmt.Errorf("empty symbol")
	}
	if prev, ok := t.sym2id[sym]; ok {
		return fmt.Errorf("symbol %q already has id %d", sym, prev)
	}
	if prev, ok := t.id2sym[id]; ok {
		return fmt.Errorf("id %d already assigned to symbol %q", id, prev)
	}
	t.sym2id[sym] = id
	t.id2sym[id] = sym
	return nil
}

// ID returns the id of sym.
func (t *Table) ID(sym string) (int, bool) {
	id, ok := t.sym2id[sym]
	return id, ok
}

// Symbol returns the symbol with the given id.
func (t *Table) Symbol(id int) (string, bool) {
	sym, ok := t.id2sym[id]
	return sym, ok
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.sym2id)
}

// Map returns a copy of the symbol to id mapping.
func (t *Table) Map() map[string]int {
	m := make(map[string]int, len(t.sym2id))
	for k, v := range t.sym2id {
		m[k] = v
	}
	return m
}

// Decode maps ids back to symbols, skipping unknown ids.
func (t *Table) Decode(ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if sym, ok := t.id2sym[id]; ok {
			out = append(out, sym)
		}
	}
	return out
}

// Save writes the table sorted by id, one "<symbol> <id>" pair per line.
func (t *Table) Save(w io.Writer) error {
	ids := make([]int, 0, len(t.id2sym))
	for id := range t.id2sym {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := fmt.Fprintf(bw, "%s %d\n", t.id2sym[id], id); err != nil {
			return err
		}
	}
	return bw.Flush()
}
