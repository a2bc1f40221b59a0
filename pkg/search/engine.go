package search

import (
	"context"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/internal/types"
)

const (
	// Result limits accepted from callers.
	MinLimit     = 1
	MaxLimit     = 20
	DefaultLimit = 5

	snippetLength = 300
)

// Request is a natural-language query with optional repository filters.
type Request struct {
	Query string `json:"query"`
	Repo  string `json:"repo,omitempty"`
	Owner string `json:"owner,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type EngineConfig struct {
	SummaryEnabled bool
}

// Engine answers queries against the corpus, optionally enhancing the raw
// hits with a generated summary.
type Engine struct {
	config    EngineConfig
	embedder  types.Embedder
	store     types.DocumentStore
	generator types.Generator // nil disables the enhancement pass
}

func NewWithConfig(config EngineConfig, embedder types.Embedder, store types.DocumentStore, generator types.Generator) *Engine {
	return &Engine{
		config:    config,
		embedder:  embedder,
		store:     store,
		generator: generator,
	}
}

// Search runs one retrieval pass and returns the structured response.
// A failing enhancement pass degrades to a plain retrieval answer rather
// than failing the query.
func (e *Engine) Search(ctx context.Context, req Request) (*models.SearchResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	start := time.Now()
	limit := ClampLimit(req.Limit)

	embedding, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %v", err)
	}

	filter := types.SearchFilter{Repo: req.Repo, Owner: req.Owner}
	docs, err := e.store.Search(ctx, embedding, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query corpus: %v", err)
	}

	result := &models.SearchResult{
		Query:          req.Query,
		Sources:        toSources(docs),
		TotalResults:   len(docs),
		FiltersApplied: filter.Repo != "" || filter.Owner != "",
	}
	result.Summary = e.summarize(ctx, req.Query, docs)
	result.QueryTimeMs = time.Since(start).Milliseconds()

	return result, nil
}

func (e *Engine) summarize(ctx context.Context, query string, docs []models.StoredDocument) string {
	if len(docs) == 0 {
		return "No matching files found in the corpus."
	}

	if e.config.SummaryEnabled && e.generator != nil {
		summary, err := e.generator.Generate(ctx, buildSummaryPrompt(query, docs))
		if err == nil && summary != "" {
			return summary
		}
		if err != nil {
			log.Printf("summary generation failed, falling back to plain results: %v", err)
		}
	}

	return fmt.Sprintf("Found %d matching files. Top match: %s.", len(docs), docs[0].Path)
}

func buildSummaryPrompt(query string, docs []models.StoredDocument) string {
	prompt := "Answer the question using only the repository excerpts below.\n\n"
	for _, doc := range docs {
		prompt += fmt.Sprintf("File: %s\n%s\n\n", doc.Path, snippet(doc.Content))
	}
	return prompt + "Question: " + query
}

func toSources(docs []models.StoredDocument) []models.Source {
	sources := make([]models.Source, len(docs))
	for i, doc := range docs {
		sources[i] = models.Source{
			FilePath:       doc.Path,
			FileName:       doc.Name,
			FileType:       fileType(doc.Name),
			Repo:           doc.Repo,
			Owner:          doc.Owner,
			SourceURL:      doc.SourceURL,
			RelevanceScore: doc.Score,
			Snippet:        snippet(doc.Content),
		}
	}
	return sources
}

// ClampLimit forces the result limit into [MinLimit, MaxLimit]. Zero means
// the caller did not ask and gets the default.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func snippet(content string) string {
	if len(content) <= snippetLength {
		return content
	}
	return content[:snippetLength] + "..."
}

func fileType(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return "text"
	}
	return ext[1:]
}
