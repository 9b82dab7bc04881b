package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultWordSeparator is the token that separates words in a transcript.
const DefaultWordSeparator = "<space>"

// transcript is one line of a transcript file: "<id> <token> <token> ...".
type transcript struct {
	ID     string
	Tokens []string
}

// readTranscripts parses a transcript file. Blank lines are skipped and a
// repeated ID is an error.
func readTranscripts(path string) ([]transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcripts: %w", err)
	}
	defer f.Close()

	var out []transcript
	seen := make(map[string]int)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if prev, ok := seen[fields[0]]; ok {
			return nil, fmt.Errorf("%s:%d: duplicate id %q (first seen on line %d)", path, line, fields[0], prev)
		}
		seen[fields[0]] = line
		out = append(out, transcript{ID: fields[0], Tokens: fields[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcripts: %w", err)
	}
	return out, nil
}

// cerBatch holds aligned references and hypotheses.
type cerBatch struct {
	IDs  []string
	Refs [][]string
	Hyps [][]string
}

// pairBatches groups references with the hypothesis of the same ID. A
// reference without hypothesis is scored against an empty one; the IDs are
// returned as missing. Hypotheses without reference are ignored.
func pairBatches(refs, hyps []transcript, size int) (batches []interface{}, missing []string) {
	if size <= 0 {
		size = 1
	}
	byID := make(map[string][]string, len(hyps))
	for _, h := range hyps {
		byID[h.ID] = h.Tokens
	}

	var cur *cerBatch
	for _, r := range refs {
		if cur == nil || len(cur.IDs) == size {
			cur = &cerBatch{}
			batches = append(batches, cur)
		}
		hyp, ok := byID[r.ID]
		if !ok {
			missing = append(missing, r.ID)
		}
		cur.IDs = append(cur.IDs, r.ID)
		cur.Refs = append(cur.Refs, r.Tokens)
		cur.Hyps = append(cur.Hyps, hyp)
	}
	return batches, missing
}

// splitWords joins the tokens between separators into words.
func splitWords(tokens []string, sep string) []string {
	var words []string
	var b strings.Builder
	for _, tok := range tokens {
		if tok == sep {
			if b.Len() > 0 {
				words = append(words, b.String())
				b.Reset()
			}
			continue
		}
		b.WriteString(tok)
	}
	if b.Len() > 0 {
		words = append(words, b.String())
	}
	return words
}

func splitAllWords(seqs [][]string, sep string) [][]string {
	out := make([][]string, len(seqs))
	for i, s := range seqs {
		out[i] = splitWords(s, sep)
	}
	return out
}
