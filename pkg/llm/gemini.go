package llm

import (
	"context"
	"errors"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiConfig represents the configuration for the Gemini generator.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiGenerator produces slide and narration text through the Google
// generative model API. Preferred by the render pipeline when an API key
// is configured.
type GeminiGenerator struct {
	config GeminiConfig
	client *genai.Client
}

func NewGeminiWithConfig(ctx context.Context, config GeminiConfig) (*GeminiGenerator, error) {
	if config.APIKey == "" {
		return nil, errors.New("missing Gemini API key")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	return &GeminiGenerator{
		config: config,
		client: client,
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.config.Model)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	if out == "" {
		return "", errors.New("gemini: response contained no text parts")
	}

	return out, nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
