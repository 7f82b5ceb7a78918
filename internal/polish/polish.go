// Package polish implements an optional language-model cleanup pass for
// confirmed transcripts: punctuation, capitalisation, and obvious
// speech-recognition stumbles, never rewording.
//
// The [Polisher] sends the raw transcript to an [llm.Provider] with a
// conservative system prompt and expects a structured JSON response carrying
// the cleaned text. It runs strictly after segment confirmation, off the
// capture path, so its latency never delays the live pipeline. When the model
// response cannot be parsed the original text is returned unchanged rather
// than surfacing an error.
package polish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxlog/voxlog/pkg/llm"
)

const defaultTemperature = 0.1

const systemPrompt = `You are a cleanup assistant for voice-journal transcripts.

Your task: restore punctuation and capitalisation in the dictated text below.

Rules:
- Add sentence punctuation and fix capitalisation only.
- Do NOT reword, summarise, reorder, or drop anything the speaker said.
- Keep filler words ("um", "like") exactly as transcribed.
- Keep the speaker's phrasing even when it is ungrammatical.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"polished_text": "<full cleaned transcript>"}

If the text needs no changes, return it verbatim.`

// modelResponse is the expected JSON structure returned by the model.
type modelResponse struct {
	PolishedText string `json:"polished_text"`
}

// Option is a functional option for configuring a [Polisher].
type Option func(*Polisher)

// WithTemperature sets the sampling temperature. Lower values produce more
// deterministic output. Default 0.1.
func WithTemperature(temp float64) Option {
	return func(p *Polisher) { p.temperature = temp }
}

// Polisher cleans up transcript text through an [llm.Provider]. Safe for
// concurrent use.
type Polisher struct {
	llm         llm.Provider
	temperature float64
}

// New returns a Polisher backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Polisher {
	p := &Polisher{llm: provider, temperature: defaultTemperature}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Polish sends text to the model and returns the cleaned transcript.
//
// An unparseable model response degrades gracefully: the original text comes
// back unchanged with a nil error, because a journal entry with raw
// punctuation beats a lost one. Context cancellation and transport errors are
// returned as non-nil errors so the caller can retry later.
func (p *Polisher) Polish(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  p.temperature,
		Messages:     []llm.Message{{Role: "user", Content: text}},
	})
	if err != nil {
		return text, fmt.Errorf("polish: complete: %w", err)
	}

	cleaned, parseErr := parseResponse(resp.Content)
	if parseErr != nil || cleaned == "" {
		return text, nil
	}
	return cleaned, nil
}

// parseResponse unmarshals the model output, stripping the markdown code
// fences some models wrap JSON in.
func parseResponse(content string) (string, error) {
	s := strings.TrimSpace(content)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}

	var r modelResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &r); err != nil {
		return "", fmt.Errorf("polish: parse response: %w", err)
	}
	return r.PolishedText, nil
}
