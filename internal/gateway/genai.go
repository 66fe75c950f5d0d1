package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/BretMeraki/Forest7-15-sub001/internal/schema"
)

// GeminiGenerator produces level content through the Gemini API. Every
// response is validated against the registered schema for the level key
// before it is returned; anything else surfaces as a GenerationError.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

// GeminiOptions configures a GeminiGenerator.
type GeminiOptions struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewGeminiGenerator creates a generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, opts GeminiOptions, logger zerolog.Logger) (*GeminiGenerator, error) {
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGenerator{
		client:  client,
		model:   opts.Model,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

// Generate makes a single model call and validates the response against
// the level schema. Timeouts, malformed JSON, and schema mismatches all
// surface as GenerationError; there is no retry here.
func (g *GeminiGenerator) Generate(ctx context.Context, levelKey string, payload any, instruction string) (json.RawMessage, error) {
	schemaJSON, err := schema.Get(levelKey)
	if err != nil {
		return nil, &GenerationError{LevelKey: levelKey, Reason: "unknown level key", Err: err}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, &GenerationError{LevelKey: levelKey, Reason: "marshal payload", Err: err}
	}

	prompt := buildPrompt(instruction, schemaJSON, payloadJSON)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("level", levelKey).Msg("generation call failed")
		return nil, &GenerationError{LevelKey: levelKey, Reason: "model call failed", Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, &GenerationError{LevelKey: levelKey, Reason: "empty model response"}
	}

	raw := json.RawMessage(text)
	if !json.Valid(raw) {
		extracted, ok := extractJSON([]byte(text))
		if !ok {
			return nil, &GenerationError{LevelKey: levelKey, Reason: "response is not valid JSON"}
		}
		raw = extracted
	}
	if err := schema.Validate(levelKey, raw); err != nil {
		return nil, &GenerationError{LevelKey: levelKey, Reason: "schema mismatch", Err: err}
	}

	g.logger.Debug().
		Str("level", levelKey).
		Dur("elapsed", time.Since(started)).
		Msg("generated level content")
	return raw, nil
}

func buildPrompt(instruction, schemaJSON string, payload []byte) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nRespond with a single JSON object that validates against this JSON schema:\n")
	b.WriteString(schemaJSON)
	b.WriteString("\n\nInput:\n")
	b.Write(payload)
	b.WriteString("\n")
	return b.String()
}

func extractJSON(data []byte) (json.RawMessage, bool) {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start == -1 || end == -1 || start >= end {
		return nil, false
	}
	candidate := data[start : end+1]
	if !json.Valid(candidate) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}
