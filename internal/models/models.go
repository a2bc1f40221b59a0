package models

import "time"

// FetchedFile is a single file pulled from a GitHub repository tree.
// Content holds decoded text, or a sentinel string for binary/undecodable
// files. Instances are read-only after the fetcher returns them.
type FetchedFile struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// DocumentPart is one chunk of a file submitted to the corpus.
type DocumentPart struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IngestionDocument is derived 1:1 from a FetchedFile and submitted once.
// ID is "owner/repo/path".
type IngestionDocument struct {
	ID       string                 `json:"id"`
	Parts    []DocumentPart         `json:"parts"`
	Metadata map[string]interface{} `json:"metadata"`
}

// StoredDocument is a corpus row returned by a similarity query.
type StoredDocument struct {
	ID        string
	Path      string
	Name      string
	Repo      string
	Owner     string
	SourceURL string
	Content   string
	Score     float64
}

// Source is one retrieval hit in a search response.
type Source struct {
	FilePath       string  `json:"file_path"`
	FileName       string  `json:"file_name"`
	FileType       string  `json:"file_type"`
	Repo           string  `json:"repo"`
	Owner          string  `json:"owner"`
	SourceURL      string  `json:"source_url"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet"`
}

// SearchResult is the structured answer for a single query. Ephemeral,
// never persisted.
type SearchResult struct {
	Query          string   `json:"query"`
	Summary        string   `json:"summary"`
	Sources        []Source `json:"sources"`
	TotalResults   int      `json:"total_results"`
	QueryTimeMs    int64    `json:"query_time_ms"`
	FiltersApplied bool     `json:"filters_applied"`
}

// IngestionSummary aggregates per-file ingestion outcomes. Partial failure
// is reported here and never aborts the pipeline.
type IngestionSummary struct {
	Total    int `json:"total"`
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Render job states.
const (
	JobPending   = "pending"
	JobLaunched  = "launched"
	JobCompleted = "completed"
	JobError     = "error"
)

// JobStatus is the JSON document the render job overwrites as it
// progresses. Last write wins; readers tolerate the race.
type JobStatus struct {
	ID        string    `json:"id,omitempty"`
	Status    string    `json:"status"`
	GCSUri    string    `json:"gcs_uri,omitempty"`
	PublicURL string    `json:"public_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Heartbeat time.Time `json:"heartbeat,omitempty"`
}

// AgentStatus reports whether the detached render process is alive.
type AgentStatus struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	RepoURL   string    `json:"repo_url,omitempty"`
	LogFile   string    `json:"log_file,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}
