package transcriber

import (
	"context"
	"iter"

	"murmur/memory"
)

// Request is one primary transcription call.
type Request struct {
	AudioPath string
	Memory    memory.Document
	// Language is LanguageAuto or a language name such as "Japanese".
	Language string
	// ScreenHint is a comma-separated list of terms seen on screen.
	ScreenHint string
}

// Client is the remote inference capability used by a dictation session.
// Streaming calls yield non-empty fragments in emission order and end with
// at most one error; a cancelled context ends the sequence with ctx.Err().
type Client interface {
	TranscribeStream(ctx context.Context, req Request) iter.Seq2[string, error]
	TranscribeStyleInstruction(ctx context.Context, audioPath string) iter.Seq2[string, error]
	ReformatStream(ctx context.Context, text, instruction string) iter.Seq2[string, error]
	DescribeScreen(ctx context.Context, jpeg []byte) (string, error)
	// AnalyzeCorrection returns nil when there is nothing to learn.
	AnalyzeCorrection(ctx context.Context, original, corrected string, mem memory.Document) (*memory.Document, error)
	CompactMemory(ctx context.Context, mem memory.Document) (memory.Document, error)
}

// Collect drains a fragment sequence into one string.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var out []byte
	for frag, err := range seq {
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
	return string(out), nil
}
