package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "abc", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const (
	refText = `a1 h e l l o <space> w o r l d
a2 f o o
`
	hypText = `a2 f o o
a1 h e l o <space> w o r l d
`
)

func TestCERCommand(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.txt", refText)
	hyp := writeFile(t, dir, "hyp.txt", hypText)

	out, err := execute(t, "cer", "--ref", ref, "--hyp", hyp)
	if err != nil {
		t.Fatalf("cer failed: %v", err)
	}
	want := "CER=7.14% (1/14) WER=33.33% (1/3)\n"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestCERCommandJSONAndStore(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.txt", refText+"a3 b a r\n")
	hyp := writeFile(t, dir, "hyp.txt", hypText)
	db := filepath.Join(dir, "runs.db")

	out, err := execute(t, "cer", "--ref", ref, "--hyp", hyp, "--store", db, "--batch-size", "2", "--json")
	if err != nil {
		t.Fatalf("cer failed: %v", err)
	}

	var res cerResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if res.Lines != 3 || !reflect.DeepEqual(res.Missing, []string{"a3"}) {
		t.Errorf("unexpected result %+v", res)
	}
	// The missing hypothesis deletes all three characters of a3.
	if res.CharErrors != 4 || res.Chars != 17 {
		t.Errorf("expected 4/17 char errors, got %d/%d", res.CharErrors, res.Chars)
	}
	if res.RunID == "" || res.TraceID == "" {
		t.Errorf("expected run and trace ids, got %q and %q", res.RunID, res.TraceID)
	}

	out, err = execute(t, "runs", "--store", db, "--epochs")
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	for _, want := range []string{res.RunID, "cer", "evaluator", "completed", "epoch 1: completed, 2 batches, iterations 1-2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestCERCommandErrors(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.txt", refText)

	if _, err := execute(t, "cer", "--ref", ref); err == nil {
		t.Error("expected an error without --hyp")
	}
	if _, err := execute(t, "cer", "--ref", ref, "--hyp", filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected an error for a missing hypothesis file")
	}
	dup := writeFile(t, dir, "dup.txt", "x a\nx b\n")
	if _, err := execute(t, "cer", "--ref", dup, "--hyp", ref); err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Errorf("expected a duplicate id error, got %v", err)
	}
}

func TestPHOCCommand(t *testing.T) {
	dir := t.TempDir()
	syms := writeFile(t, dir, "syms.txt", "a 0\nb 1\n")

	out, err := execute(t, "phoc", "--syms", syms, "--levels", "1,2", "ab", "bb")
	if err != nil {
		t.Fatalf("phoc failed: %v", err)
	}
	want := "ab 1 1 1 0 0 1\nbb 0 1 0 1 0 1\n"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}

	if _, err := execute(t, "phoc", "--syms", syms, "--levels", "1", "ac"); err == nil {
		t.Error("expected an error for a missing symbol")
	}
	out, err = execute(t, "phoc", "--syms", syms, "--levels", "1", "--ignore-missing", "ac")
	if err != nil {
		t.Fatalf("phoc failed: %v", err)
	}
	if out != "ac 1 0\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPHOCCommandUsesConfigLevels(t *testing.T) {
	dir := t.TempDir()
	syms := writeFile(t, dir, "syms.txt", "a 0\nb 1\n")
	cfg := writeFile(t, dir, "laia.yaml", "phoc:\n  levels: [1]\n")

	out, err := execute(t, "--config", cfg, "phoc", "--syms", syms, "b")
	if err != nil {
		t.Fatalf("phoc failed: %v", err)
	}
	if out != "b 0 1\n" {
		t.Errorf("unexpected output %q", out)
	}

	bad := writeFile(t, dir, "bad.yaml", "phoc:\n  levels: [0]\n")
	if _, err := execute(t, "--config", bad, "phoc", "--syms", syms, "b"); err == nil {
		t.Error("expected an invalid config error")
	}
}

func TestRunsCommandEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "runs", "--store", db)
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	if out != "No runs recorded\n" {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := execute(t, "runs"); err == nil {
		t.Error("expected an error without a store")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "laia test") || !strings.Contains(out, "commit: abc") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		tokens []string
		want   []string
	}{
		{[]string{"a", "b", "<space>", "c"}, []string{"ab", "c"}},
		{[]string{"<space>", "a", "<space>", "<space>"}, []string{"a"}},
		{nil, nil},
	}
	for _, tt := range tests {
		if got := splitWords(tt.tokens, DefaultWordSeparator); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitWords(%v) = %v, want %v", tt.tokens, got, tt.want)
		}
	}
}

func TestPairBatches(t *testing.T) {
	refs := []transcript{{"1", []string{"a"}}, {"2", []string{"b"}}, {"3", []string{"c"}}}
	hyps := []transcript{{"3", []string{"c"}}, {"1", []string{"x"}}, {"9", []string{"z"}}}

	batches, missing := pairBatches(refs, hyps, 2)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	first := batches[0].(*cerBatch)
	if !reflect.DeepEqual(first.IDs, []string{"1", "2"}) || first.Hyps[0][0] != "x" || first.Hyps[1] != nil {
		t.Errorf("unexpected first batch %+v", first)
	}
	if !reflect.DeepEqual(missing, []string{"2"}) {
		t.Errorf("expected missing [2], got %v", missing)
	}
}
