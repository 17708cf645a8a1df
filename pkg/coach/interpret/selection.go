package interpret

import (
	"strconv"
	"strings"
)

// SelectionOption is one entry of an active selection set.
type SelectionOption struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Index    int            `json:"index"`
	Synonyms []string       `json:"synonyms,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// MatchKind records which precedence tier resolved a selection.
type MatchKind string

const (
	MatchNone    MatchKind = "none"
	MatchOrdinal MatchKind = "ordinal"
	MatchLabel   MatchKind = "label"
	MatchSynonym MatchKind = "synonym"
	MatchPartial MatchKind = "partial" // medium confidence, needs confirmation
)

// SelectionResult is the outcome of resolving a transcript against an
// option set.
type SelectionResult struct {
	Match  MatchKind
	Option SelectionOption
}

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// stopWords are ignored when measuring keyword overlap.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "for": true,
	"and": true, "with": true, "to": true, "my": true, "me": true,
	"i": true, "want": true, "do": true, "let's": true, "lets": true,
	"please": true, "that": true, "this": true, "it": true,
}

// ResolveSelection resolves a transcript against an option set in strict
// precedence: ordinal/number reference, exact or substring label match,
// synonym match, then partial keyword overlap (at least half of a label's
// significant words) which callers must confirm. Deterministic for a fixed
// transcript and option set.
func ResolveSelection(transcript string, options []SelectionOption) SelectionResult {
	if len(options) == 0 {
		return SelectionResult{Match: MatchNone}
	}
	text := normalize(transcript)
	w := words(text)

	// Tier 1: explicit ordinal or number.
	if n, ok := ordinalReference(w); ok {
		for _, opt := range options {
			if opt.Index == n-1 {
				return SelectionResult{Match: MatchOrdinal, Option: opt}
			}
		}
	}

	// Tier 2: exact or substring label match.
	for _, opt := range options {
		label := normalize(opt.Label)
		if label != "" && (text == label || strings.Contains(text, label)) {
			return SelectionResult{Match: MatchLabel, Option: opt}
		}
	}

	// Tier 3: supplied synonyms.
	for _, opt := range options {
		for _, syn := range opt.Synonyms {
			s := normalize(syn)
			if s != "" && containsPhrase(w, words(s)) {
				return SelectionResult{Match: MatchSynonym, Option: opt}
			}
		}
	}

	// Tier 4: partial keyword overlap, best option wins.
	bestScore := 0.0
	var best *SelectionOption
	for i := range options {
		score := overlapScore(w, words(options[i].Label))
		if score > bestScore {
			bestScore = score
			best = &options[i]
		}
	}
	if best != nil && bestScore >= 0.5 {
		return SelectionResult{Match: MatchPartial, Option: *best}
	}
	return SelectionResult{Match: MatchNone}
}

// ordinalReference extracts an explicit selection number: "two", "the
// third one", "number 2", or a bare digit.
func ordinalReference(w []string) (int, bool) {
	for i, word := range w {
		if word == "number" && i+1 < len(w) {
			if n, err := strconv.Atoi(w[i+1]); err == nil && n > 0 {
				return n, true
			}
			if n, ok := ordinalWords[w[i+1]]; ok {
				return n, true
			}
		}
		if n, err := strconv.Atoi(word); err == nil && n > 0 {
			return n, true
		}
		if n, ok := ordinalWords[word]; ok {
			return n, true
		}
	}
	return 0, false
}

// overlapScore is the fraction of the label's significant words present in
// the transcript.
func overlapScore(transcript, label []string) float64 {
	present := make(map[string]bool, len(transcript))
	for _, w := range transcript {
		present[w] = true
	}
	total, hit := 0, 0
	for _, w := range label {
		if stopWords[w] {
			continue
		}
		total++
		if present[w] {
			hit++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}
