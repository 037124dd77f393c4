package transcriber

import (
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultTranscriptionModel = "gemini-2.5-flash-lite"
	DefaultAnalysisModel      = "gemini-3-flash-preview"

	LanguageAuto = "Auto"
)

// Models lists the model identifiers known to work, fastest first.
var Models = []string{
	"gemini-2.0-flash-lite",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
	"gemini-2.5-flash",
	"gemini-3-flash-preview",
	"gemini-3-pro-preview",
}

// Languages offered for the language setting besides LanguageAuto.
var Languages = []string{
	LanguageAuto,
	"English", "Japanese", "Chinese", "Korean", "Spanish",
	"French", "German", "Portuguese", "Italian", "Russian",
}

type effort int

const (
	effortMinimal effort = iota
	effortMaximal
)

func supportsThinking(model string) bool {
	return strings.Contains(model, "gemini-2.5") || strings.Contains(model, "gemini-3")
}

// Pro models of the third generation cannot turn thinking off and take a
// level instead of a budget.
func usesThinkingLevel(model string) bool {
	return strings.Contains(model, "3-pro") || strings.Contains(model, "3.0-pro")
}

func thinkingConfig(model string, e effort) *genai.ThinkingConfig {
	model = strings.ToLower(model)
	if !supportsThinking(model) {
		return nil
	}
	if usesThinkingLevel(model) {
		level := genai.ThinkingLevelLow
		if e == effortMaximal {
			level = genai.ThinkingLevelHigh
		}
		return &genai.ThinkingConfig{ThinkingLevel: level}
	}
	budget := int32(0)
	if e == effortMaximal {
		budget = -1 // dynamic
	}
	return &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(budget)}
}
