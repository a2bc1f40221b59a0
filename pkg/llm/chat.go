package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string // Ollama server URL
}

// ChatEngine is an engine that uses an LLM to answer questions about a
// repository from retrieved file snippets.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewChatWithConfig creates a new ChatEngine with the given configuration.
func NewChatWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful assistant that answers questions about a software repository using the provided file excerpts. Cite file paths when relevant."
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// Summarize answers the query using the retrieved documents as context.
func (ce *ChatEngine) Summarize(ctx context.Context, query string, docs []models.StoredDocument) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, BuildContext(query, docs)),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens))
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return response.Choices[0].Content, nil
}

// Generate satisfies the Generator interface used by the render pipeline.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string) (string, error) {
	return ce.Summarize(ctx, prompt, nil)
}

// BuildContext assembles the retrieval context block handed to the model.
func BuildContext(query string, docs []models.StoredDocument) string {
	var b strings.Builder

	if len(docs) > 0 {
		b.WriteString("Relevant repository files:\n\n")
		for _, doc := range docs {
			b.WriteString(fmt.Sprintf("File: %s\n%s\n\n", doc.Path, doc.Content))
		}
	}
	b.WriteString("Question: ")
	b.WriteString(query)

	return b.String()
}
