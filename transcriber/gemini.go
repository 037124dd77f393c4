package transcriber

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"murmur/audio"
	"murmur/encoder"
	"murmur/log"
	"murmur/memory"
)

const (
	silencePad = 500 * time.Millisecond

	mimeWAV  = "audio/wav"
	mimeFLAC = "audio/flac"
	mimeJPEG = "image/jpeg"

	// Upload formats for recorded audio.
	FormatWAV  = "wav"
	FormatFLAC = "flac"
)

var ErrNoAPIKey = errors.New("gemini api key is empty")

type Config struct {
	APIKey             string
	TranscriptionModel string
	AnalysisModel      string
	// AudioFormat is FormatWAV or FormatFLAC.
	AudioFormat string
}

func (c Config) withDefaults() Config {
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = DefaultTranscriptionModel
	}
	if c.AnalysisModel == "" {
		c.AnalysisModel = DefaultAnalysisModel
	}
	if c.AudioFormat != FormatFLAC {
		c.AudioFormat = FormatWAV
	}
	return c
}

// generator is the part of the SDK the client uses; *genai.Models
// satisfies it.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Gemini implements Client on the Gemini API.
type Gemini struct {
	cfg      Config
	gen      generator
	http     *http.Client
	endpoint string
}

// sharedHTTP is reused across clients so settings reloads keep the warm
// connection pool.
var sharedHTTP = newHTTPClient()

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: sharedHTTP,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newGemini(client.Models, cfg, sharedHTTP), nil
}

func newGemini(gen generator, cfg Config, hc *http.Client) *Gemini {
	if hc == nil {
		hc = sharedHTTP
	}
	return &Gemini{cfg: cfg.withDefaults(), gen: gen, http: hc, endpoint: geminiEndpoint}
}

func (g *Gemini) Config() Config { return g.cfg }

func (g *Gemini) TranscribeStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction(req.Memory, req.Language, req.ScreenHint), genai.RoleUser),
		ThinkingConfig:    thinkingConfig(g.cfg.TranscriptionModel, effortMinimal),
	}
	return g.transcribe(ctx, "transcribe", req.AudioPath, cfg)
}

func (g *Gemini) TranscribeStyleInstruction(ctx context.Context, audioPath string) iter.Seq2[string, error] {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(styleInstructionSystem, genai.RoleUser),
		ThinkingConfig:    thinkingConfig(g.cfg.TranscriptionModel, effortMinimal),
	}
	return g.transcribe(ctx, "style_instruction", audioPath, cfg)
}

func (g *Gemini) transcribe(ctx context.Context, kind, audioPath string, cfg *genai.GenerateContentConfig) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		wav, err := os.ReadFile(audioPath)
		if err != nil {
			yield("", fmt.Errorf("reading audio: %w", err))
			return
		}
		padded, err := audio.PadSilence(wav, silencePad)
		if err != nil {
			log.Warnf("pad silence: %v", err)
			padded = wav
		}
		payload, mime := padded, mimeWAV
		if g.cfg.AudioFormat == FormatFLAC {
			if compressed, err := encoder.FLAC(padded); err == nil {
				payload, mime = compressed, mimeFLAC
			} else {
				log.Warnf("flac encode, sending wav: %v", err)
			}
		}
		contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribeUserText),
			genai.NewPartFromBytes(payload, mime),
		}, genai.RoleUser)}

		for frag, err := range g.stream(ctx, kind, g.cfg.TranscriptionModel, contents, cfg, len(payload)) {
			if !yield(frag, err) || err != nil {
				return
			}
		}
	}
}

func (g *Gemini) ReformatStream(ctx context.Context, text, instruction string) iter.Seq2[string, error] {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(reformatSystem, genai.RoleUser),
		ThinkingConfig:    thinkingConfig(g.cfg.TranscriptionModel, effortMinimal),
	}
	contents := []*genai.Content{genai.NewContentFromText(reformatUserText(text, instruction), genai.RoleUser)}
	return g.stream(ctx, "reformat", g.cfg.TranscriptionModel, contents, cfg, 0)
}

// stream forwards the non-empty text of each response chunk and logs
// timing once the sequence ends.
func (g *Gemini) stream(ctx context.Context, kind, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig, audioBytes int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		var first time.Duration
		var fragments, chars int
		defer func() {
			log.StreamMetrics(log.StreamMetricsData{
				Kind:      kind,
				Model:     model,
				FirstMs:   float64(first.Milliseconds()),
				TotalMs:   float64(time.Since(start).Milliseconds()),
				Fragments: fragments,
				Chars:     chars,
				AudioKB:   float64(audioBytes) / 1024,
			})
		}()

		for resp, err := range g.gen.GenerateContentStream(ctx, model, contents, cfg) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield("", ctxErr)
				return
			}
			if err != nil {
				yield("", fmt.Errorf("%s stream: %w", kind, err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if fragments == 0 {
				first = time.Since(start)
			}
			fragments++
			chars += len(text)
			if !yield(text, nil) {
				return
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield("", ctxErr)
		}
	}
}

func (g *Gemini) DescribeScreen(ctx context.Context, jpeg []byte) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(jpeg, mimeJPEG),
		genai.NewPartFromText(describeScreenPrompt),
	}, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: thinkingConfig(g.cfg.TranscriptionModel, effortMinimal),
	}
	text, err := g.generate(ctx, g.cfg.TranscriptionModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("describe screen: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (g *Gemini) AnalyzeCorrection(ctx context.Context, original, corrected string, mem memory.Document) (*memory.Document, error) {
	if original == corrected {
		return nil, nil
	}
	prompt := fmt.Sprintf(analyzePrompt, original, corrected, mem.JSON())
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: thinkingConfig(g.cfg.AnalysisModel, effortMaximal),
	}
	text, err := g.generate(ctx, g.cfg.AnalysisModel, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("analyze correction: %w", err)
	}
	if strings.Contains(text, noUpdateMarker) {
		return nil, nil
	}
	doc, ok := parseMemory(text, mem)
	if !ok {
		log.Warnf("analyze correction: unparseable response, keeping memory")
	}
	return &doc, nil
}

func (g *Gemini) CompactMemory(ctx context.Context, mem memory.Document) (memory.Document, error) {
	prompt := fmt.Sprintf(compactPrompt, memory.TokenBudget, mem.JSON(), memory.MaxTranscriptionRules)
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: thinkingConfig(g.cfg.AnalysisModel, effortMaximal),
	}
	text, err := g.generate(ctx, g.cfg.AnalysisModel, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return mem, fmt.Errorf("compact memory: %w", err)
	}
	doc, ok := parseMemory(text, mem)
	if !ok {
		log.Warnf("compact memory: unparseable response, capping rules only")
	}
	return enforceCompaction(mem, doc), nil
}

func (g *Gemini) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.gen.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// responseText joins the text parts of the first candidate, skipping
// thought summaries.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
