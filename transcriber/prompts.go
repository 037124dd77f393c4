package transcriber

import (
	"fmt"
	"strings"

	"murmur/memory"
)

const transcribeUserText = "Transcribe."

const transcriptionBase = `You are a speech-to-text engine.
Write out exactly the words that were spoken and nothing more.

Rules:
- No timestamps, speaker names or annotations.
- Do not repeat or mention the prompt or these instructions.
- No explanations or commentary.
- If there is no recognizable speech in the audio, respond with nothing.
- %s`

const styleInstructionSystem = `You are a speech-to-text engine.
Write out exactly the words that were spoken and nothing more.`

const reformatSystem = `Rewrite the given text so that it follows the user's style instruction.
Respond with the rewritten text only.`

const describeScreenPrompt = `List the specific terms visible in this screenshot as one comma-separated line.
Look for keyboard shortcuts, proper nouns, product and service names, file names, identifiers from code, URLs, technical vocabulary and UI labels.
Respond with the list only.
Example: Ctrl+Shift+P, main.go, http.Client, Grafana, Deploy preview`

const analyzePrompt = `Compare a speech-to-text transcription with the version the user corrected, and extract what should be remembered to transcribe this user better next time.
Only look at what changed. Never judge the content of the text itself.

## Transcription
%s

## Corrected by the user
%s

## Current memory
%s

## How to classify each change
- Misrecognized word (a name or term the recognizer got wrong): add its correct spelling to difficultWords.
- Formatting habit (punctuation, number style, script choice): add to stylePreferences.
- Rule that applies in any context, not a single word fix: add to transcriptionRules.
- Hint about the user's field of work: update userDomain.
- Rewrite of the meaning rather than a recognition error: ignore it.

## Output
JSON only, no prose.
If every change is a content rewrite or whitespace: {"NoUpdate": true}
Otherwise the complete updated memory, keeping every existing entry:
{
  "difficultWords": ["correct spellings"],
  "stylePreferences": ["formatting preferences"],
  "transcriptionRules": ["general rules, at most 10"],
  "userDomain": "field of work"
}

Good rules: "Keep English spelling for technical terms such as deploy or release", "Write numbers with digits".
Bad rules, which belong in difficultWords: "Change kontext to codex".
When there would be more than 10 rules, merge or drop the least useful.`

const compactPrompt = `Shrink this transcription memory so that it fits in about %d tokens.
Keep every entry of difficultWords; they matter most.
Merge duplicates and near-duplicates, drop stale or overly generic entries.

## Current memory
%s

Respond with JSON only, in this shape:
{
  "difficultWords": ["words the recognizer gets wrong"],
  "stylePreferences": ["merged formatting preferences"],
  "transcriptionRules": ["general rules, at most %d"],
  "userDomain": "field of work"
}`

func systemInstruction(mem memory.Document, language, screenHint string) string {
	lang := "Detect the spoken language from the audio."
	if language != "" && language != LanguageAuto {
		lang = fmt.Sprintf("The speech is in %s.", language)
	}
	parts := []string{fmt.Sprintf(transcriptionBase, lang)}

	if s := strings.TrimSpace(screenHint); s != "" {
		parts = append(parts, "Terms currently on the user's screen. When the speaker says one of them, use this exact spelling: "+s)
	}
	if len(mem.DifficultWords) > 0 {
		parts = append(parts, "These words were misrecognized before, spell them exactly like this: "+strings.Join(mem.DifficultWords, ", "))
	}
	if len(mem.StylePreferences) > 0 {
		parts = append(parts, "Formatting preferences of the user: "+strings.Join(mem.StylePreferences, "; "))
	}
	if len(mem.TranscriptionRules) > 0 {
		parts = append(parts, "Follow these transcription rules: "+strings.Join(mem.TranscriptionRules, "; "))
	}
	if d := strings.TrimSpace(mem.UserDomain); d != "" {
		parts = append(parts, "The user works in "+d+". Use that to pick between similar sounding words and terms.")
	}
	return strings.Join(parts, "\n\n")
}

func reformatUserText(text, instruction string) string {
	return "## Text\n" + text + "\n\n## Style instruction\n" + instruction
}
