package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/internal/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	SearchLimit int
}

// VectorStore is the pgvector-backed corpus. Documents are keyed by
// "owner/repo/path" with one row per chunk.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "repo_documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			repo TEXT NOT NULL,
			owner TEXT NOT NULL,
			path TEXT NOT NULL,
			name TEXT,
			source_url TEXT,
			chunk_index INTEGER,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Upsert writes one ingestion document, one row per part. The embeddings
// slice must be parallel to doc.Parts.
func (vs *VectorStore) Upsert(ctx context.Context, doc models.IngestionDocument, embeddings [][]float32) error {
	if len(embeddings) != len(doc.Parts) {
		return fmt.Errorf("embedding count %d does not match part count %d", len(embeddings), len(doc.Parts))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, repo, owner, path, name, source_url, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	repo := metadataString(doc.Metadata, "repo")
	owner := metadataString(doc.Metadata, "owner")
	sourceURL := metadataString(doc.Metadata, "source_url")
	path := strings.TrimPrefix(doc.ID, owner+"/"+repo+"/")

	for i, part := range doc.Parts {
		id := fmt.Sprintf("%s#%d", doc.ID, i)

		_, err = tx.Exec(ctx, stmt,
			id,
			doc.ID,
			repo,
			owner,
			path,
			baseName(path),
			sourceURL,
			i,
			sanitizeUTF8(part.Text),
			pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert document part: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Search returns the closest chunks by cosine distance, optionally
// restricted to one repository.
func (vs *VectorStore) Search(ctx context.Context, embedding []float32, filter types.SearchFilter, limit int) ([]models.StoredDocument, error) {
	if limit == 0 {
		limit = vs.config.SearchLimit
	}

	query, args := buildSearchQuery(vs.config.TableName, pgvector.NewVector(embedding), filter, limit)

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %v", err)
	}
	defer rows.Close()

	var docs []models.StoredDocument
	for rows.Next() {
		var doc models.StoredDocument
		err := rows.Scan(
			&doc.ID,
			&doc.Path,
			&doc.Name,
			&doc.Repo,
			&doc.Owner,
			&doc.SourceURL,
			&doc.Content,
			&doc.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// buildSearchQuery builds the similarity query with optional repo/owner
// filters. Split out so the SQL shape is testable without a database.
func buildSearchQuery(table string, embedding interface{}, filter types.SearchFilter, limit int) (string, []interface{}) {
	args := []interface{}{embedding}
	var conds []string

	if filter.Repo != "" {
		args = append(args, filter.Repo)
		conds = append(conds, fmt.Sprintf("repo = $%d", len(args)))
	}
	if filter.Owner != "" {
		args = append(args, filter.Owner)
		conds = append(conds, fmt.Sprintf("owner = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ") + "\n\t\t"
	}

	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT id, path, name, repo, owner, source_url, content, 1 - (embedding <=> $1) AS score
		FROM %s
		%sORDER BY embedding <=> $1
		LIMIT $%d`,
		table, where, len(args))

	return query, args
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func metadataString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
