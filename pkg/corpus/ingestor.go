package corpus

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/internal/types"
	"github.com/abhay-lal/Visper/pkg/githubrepo"
)

// textExtensions is the allowlist of file extensions submitted to the
// corpus.
var textExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true,
	".tsx": true, ".java": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cs": true, ".rb": true, ".rs": true, ".php": true,
	".swift": true, ".kt": true, ".scala": true, ".sh": true, ".bash": true,
	".md": true, ".rst": true, ".txt": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".xml": true, ".html": true, ".css": true,
	".sql": true, ".proto": true, ".dockerfile": true, ".tf": true,
}

// textFilenames are extension-less files worth indexing.
var textFilenames = map[string]bool{
	"makefile": true, "dockerfile": true, "license": true, "readme": true,
	"gemfile": true, "rakefile": true, "procfile": true,
}

type IngestorConfig struct {
	MinContentLength int
	MaxAttempts      int
	BackoffBase      time.Duration
	ChunkSize        int
	ChunkOverlap     int
	OnProgress       func(path string)
}

// Ingestor filters fetched files, converts them to ingestion documents and
// submits each one to the corpus with bounded retries.
type Ingestor struct {
	config   IngestorConfig
	embedder types.Embedder
	store    types.DocumentStore
}

func NewWithConfig(config IngestorConfig, embedder types.Embedder, store types.DocumentStore) *Ingestor {
	if config.MinContentLength == 0 {
		config.MinContentLength = 50
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = time.Second
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}

	return &Ingestor{
		config:   config,
		embedder: embedder,
		store:    store,
	}
}

// Ingest submits eligible files as corpus documents. Per-document failure
// is counted, logged and never aborts the run; the returned summary always
// covers every input file.
func (ing *Ingestor) Ingest(ctx context.Context, files []models.FetchedFile, owner, repo string) models.IngestionSummary {
	summary := models.IngestionSummary{Total: len(files)}

	files = DedupeReadmes(files)

	for _, file := range files {
		if !ing.eligible(file) {
			summary.Skipped++
			continue
		}

		doc := ing.buildDocument(file, owner, repo)
		if err := ing.submitWithRetry(ctx, doc); err != nil {
			log.Printf("ingestion failed for %s: %v", doc.ID, err)
			summary.Failed++
			continue
		}

		if ing.config.OnProgress != nil {
			ing.config.OnProgress(file.Path)
		}
		summary.Ingested++
	}

	// Files dropped by README de-duplication count as skipped.
	summary.Skipped += summary.Total - len(files)

	return summary
}

// submitWithRetry embeds and stores one document, retrying with
// exponential backoff (base, 2x, 4x) up to MaxAttempts.
func (ing *Ingestor) submitWithRetry(ctx context.Context, doc models.IngestionDocument) error {
	var lastErr error

	for attempt := 0; attempt < ing.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := ing.config.BackoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = ing.submit(ctx, doc)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("giving up after %d attempts: %v", ing.config.MaxAttempts, lastErr)
}

func (ing *Ingestor) submit(ctx context.Context, doc models.IngestionDocument) error {
	texts := make([]string, len(doc.Parts))
	for i, part := range doc.Parts {
		texts[i] = part.Text
	}

	embeddings, err := ing.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	return ing.store.Upsert(ctx, doc, embeddings)
}

func (ing *Ingestor) buildDocument(file models.FetchedFile, owner, repo string) models.IngestionDocument {
	metadata := map[string]interface{}{
		"repo":       repo,
		"owner":      owner,
		"source_url": githubrepo.SourceURL(owner, repo, file.Path),
	}

	chunks := splitChunks(file.Content, ing.config.ChunkSize, ing.config.ChunkOverlap)
	parts := make([]models.DocumentPart, len(chunks))
	for i, chunk := range chunks {
		parts[i] = models.DocumentPart{
			Text:     chunk,
			Metadata: map[string]interface{}{"file_path": file.Path},
		}
	}

	return models.IngestionDocument{
		ID:       fmt.Sprintf("%s/%s/%s", owner, repo, file.Path),
		Parts:    parts,
		Metadata: metadata,
	}
}

func (ing *Ingestor) eligible(file models.FetchedFile) bool {
	if file.Content == githubrepo.BinaryContentSentinel ||
		file.Content == githubrepo.DecodeFailedSentinel {
		return false
	}
	if len(file.Content) < ing.config.MinContentLength {
		return false
	}

	ext := strings.ToLower(path.Ext(file.Name))
	if ext != "" {
		return textExtensions[ext]
	}

	name := strings.ToLower(file.Name)
	return textFilenames[name]
}

// DedupeReadmes collapses multiple README-like files to the single most
// canonical one: root README.md if present, otherwise the shallowest
// README (ties broken lexicographically by path).
func DedupeReadmes(files []models.FetchedFile) []models.FetchedFile {
	var canonical string
	for _, file := range files {
		if !isReadme(file.Name) {
			continue
		}
		if file.Path == "README.md" {
			canonical = file.Path
			break
		}
		if canonical == "" || readmeLess(file.Path, canonical) {
			canonical = file.Path
		}
	}
	if canonical == "" {
		return files
	}

	kept := files[:0:0]
	for _, file := range files {
		if isReadme(file.Name) && file.Path != canonical {
			continue
		}
		kept = append(kept, file)
	}
	return kept
}

func isReadme(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "readme")
}

func readmeLess(a, b string) bool {
	da, db := strings.Count(a, "/"), strings.Count(b, "/")
	if da != db {
		return da < db
	}
	return a < b
}

// splitChunks splits content into chunks of roughly size bytes along line
// boundaries, carrying overlap bytes of trailing context into the next
// chunk.
func splitChunks(content string, size, overlap int) []string {
	if len(content) <= size {
		return []string{content}
	}

	var chunks []string
	current := strings.Builder{}

	for _, line := range strings.SplitAfter(content, "\n") {
		if current.Len() > 0 && current.Len()+len(line) > size {
			chunk := current.String()
			chunks = append(chunks, strings.TrimRight(chunk, "\n"))

			current.Reset()
			if overlap > 0 && len(chunk) > overlap {
				current.WriteString(chunk[len(chunk)-overlap:])
			}
		}
		current.WriteString(line)
	}

	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
	}

	return chunks
}
