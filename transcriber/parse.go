package transcriber

import (
	"encoding/json"
	"strings"

	"murmur/memory"
)

const noUpdateMarker = `"NoUpdate"`

// parseMemory extracts the JSON object between the first '{' and the last
// '}' of a model response. Anything unparseable yields fallback.
func parseMemory(text string, fallback memory.Document) (memory.Document, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return fallback.Clone().Normalized(), false
	}
	var doc memory.Document
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil {
		return fallback.Clone().Normalized(), false
	}
	return doc.Normalized(), true
}

// enforceCompaction caps the rule list and puts back any difficult word of
// the input the model dropped, in input order.
func enforceCompaction(in, out memory.Document) memory.Document {
	out = out.Normalized()
	if len(out.TranscriptionRules) > memory.MaxTranscriptionRules {
		out.TranscriptionRules = out.TranscriptionRules[:memory.MaxTranscriptionRules]
	}
	have := make(map[string]bool, len(out.DifficultWords))
	for _, w := range out.DifficultWords {
		have[w] = true
	}
	for _, w := range in.DifficultWords {
		if !have[w] {
			out.DifficultWords = append(out.DifficultWords, w)
			have[w] = true
		}
	}
	return out
}
