package types

import (
	"context"

	"github.com/abhay-lal/Visper/internal/models"
)

// Core interfaces

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Generator produces free text from a prompt. Implemented by the Ollama
// chat engine and the Gemini client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SearchFilter narrows a corpus query to one repository.
type SearchFilter struct {
	Repo  string
	Owner string
}

// DocumentStore is the vector corpus backend.
type DocumentStore interface {
	Upsert(ctx context.Context, doc models.IngestionDocument, embeddings [][]float32) error
	Search(ctx context.Context, embedding []float32, filter SearchFilter, limit int) ([]models.StoredDocument, error)
	Close()
}

// Uploader pushes a rendered artifact to cloud storage and returns its
// gs:// URI plus the derived public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (gcsURI, publicURL string, err error)
}
