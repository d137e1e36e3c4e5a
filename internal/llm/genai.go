package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"lingoloop/internal/logging"
)

// GenAIClient implements Client over the Google GenAI API.
type GenAIClient struct {
	client       *genai.Client
	defaultModel string
}

// NewGenAIClient builds a client. model is the fallback when a request
// does not name one.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, defaultModel: model}, nil
}

// Run executes one model call, streaming deltas to req.OnDelta when asked.
func (c *GenAIClient) Run(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	cfg := &genai.GenerateContentConfig{}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Input, genai.RoleUser)}

	log := logging.For(logging.CategoryLLM)
	if !req.Stream {
		resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		text := resp.Text()
		log.Debugw("model call complete", "model", model, "chars", len(text))
		return &Response{Text: text, Model: model}, nil
	}

	var sb strings.Builder
	for chunk, err := range c.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("stream failed: %w", err)
		}
		delta := chunk.Text()
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if req.OnDelta != nil {
			req.OnDelta(delta)
		}
	}
	log.Debugw("stream complete", "model", model, "chars", sb.Len())
	return &Response{Text: sb.String(), Model: model}, nil
}
