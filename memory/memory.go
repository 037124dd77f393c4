// Package memory persists what the assistant has learned about the user's
// speech: words it got wrong before, formatting preferences, general rules
// and the user's field of work.
package memory

import (
	"encoding/json"
	"slices"
	"strings"
	"unicode"
)

const (
	// TokenBudget is the estimated size above which a document is compacted.
	TokenBudget = 500
	// MaxTranscriptionRules bounds the rule list after compaction.
	MaxTranscriptionRules = 10
)

type Document struct {
	DifficultWords     []string `json:"difficultWords"`
	StylePreferences   []string `json:"stylePreferences"`
	TranscriptionRules []string `json:"transcriptionRules"`
	UserDomain         string   `json:"userDomain"`
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	return Document{
		DifficultWords:     slices.Clone(d.DifficultWords),
		StylePreferences:   slices.Clone(d.StylePreferences),
		TranscriptionRules: slices.Clone(d.TranscriptionRules),
		UserDomain:         d.UserDomain,
	}
}

func (d Document) IsEmpty() bool {
	return len(d.DifficultWords) == 0 &&
		len(d.StylePreferences) == 0 &&
		len(d.TranscriptionRules) == 0 &&
		strings.TrimSpace(d.UserDomain) == ""
}

// normalize replaces nil lists with empty ones so the JSON form always
// carries arrays.
func (d *Document) normalize() {
	if d.DifficultWords == nil {
		d.DifficultWords = []string{}
	}
	if d.StylePreferences == nil {
		d.StylePreferences = []string{}
	}
	if d.TranscriptionRules == nil {
		d.TranscriptionRules = []string{}
	}
}

// Normalized returns a copy with nil lists replaced by empty ones.
func (d Document) Normalized() Document {
	d.normalize()
	return d
}

// JSON renders the document the way it is stored on disk.
func (d Document) JSON() string {
	d.normalize()
	b, _ := json.MarshalIndent(d, "", "  ")
	return string(b)
}

// EstimateTokens approximates the prompt cost of the serialized document:
// each CJK character counts 1.5 and each run of ASCII letters or digits
// counts 1.
func EstimateTokens(d Document) int {
	d.normalize()
	b, err := json.Marshal(d)
	if err != nil {
		return 0
	}

	var cjk, words int
	inWord := false
	for _, r := range string(b) {
		if isCJK(r) {
			cjk++
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if !inWord {
				words++
				inWord = true
			}
			continue
		}
		inWord = false
	}
	return cjk*3/2 + words
}

func isCJK(r rune) bool {
	return (r >= 0x3000 && r <= 0x9FFF) || (r >= 0xF900 && r <= 0xFAFF)
}

func NeedsCompaction(d Document) bool {
	return EstimateTokens(d) > TokenBudget
}
