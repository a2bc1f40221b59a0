package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/pkg/githubrepo"
	"github.com/abhay-lal/Visper/pkg/search"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the websocket envelope for progress updates.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Fetcher walks a repository and returns its text files.
type Fetcher interface {
	FetchRepository(ctx context.Context, owner, repo string) ([]models.FetchedFile, error)
}

// Ingestor submits fetched files to the corpus.
type Ingestor interface {
	Ingest(ctx context.Context, files []models.FetchedFile, owner, repo string) models.IngestionSummary
}

// Searcher answers natural-language queries.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*models.SearchResult, error)
}

// JobManager launches and tracks background render jobs.
type JobManager interface {
	Launch(repoURL string) (string, error)
	VideoStatus() models.JobStatus
	AgentStatus() models.AgentStatus
}

type Config struct {
	Port int
}

// Server exposes the fetch/search/status pipeline over HTTP.
type Server struct {
	config   Config
	fetcher  Fetcher
	ingestor Ingestor
	searcher Searcher
	jobs     JobManager
}

func New(config Config, fetcher Fetcher, ingestor Ingestor, searcher Searcher, jobs JobManager) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}

	return &Server{
		config:   config,
		fetcher:  fetcher,
		ingestor: ingestor,
		searcher: searcher,
		jobs:     jobs,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /fetch-repo", s.handleFetchRepo)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /video-status", s.handleVideoStatus)
	mux.HandleFunc("GET /agent-status", s.handleAgentStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type fetchRepoRequest struct {
	RepoURL string `json:"repo_url"`
}

type fetchRepoResponse struct {
	Owner       string                  `json:"owner"`
	Repo        string                  `json:"repo"`
	TotalFiles  int                     `json:"total_files"`
	Files       []models.FetchedFile    `json:"files"`
	Ingestion   models.IngestionSummary `json:"ingestion"`
	RenderJobID string                  `json:"render_job_id,omitempty"`
}

// handleFetchRepo runs the fetch → ingest → launch pipeline. Ingestion
// failures are reported in the summary, and the render job is launched
// regardless of ingestion success.
func (s *Server) handleFetchRepo(w http.ResponseWriter, r *http.Request) {
	var req fetchRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	owner, repo, err := githubrepo.ParseRepoURL(req.RepoURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	files, err := s.fetcher.FetchRepository(r.Context(), owner, repo)
	if err != nil {
		writeError(w, upstreamStatus(err), err.Error())
		return
	}

	summary := s.ingestor.Ingest(r.Context(), files, owner, repo)

	jobID, err := s.jobs.Launch(req.RepoURL)
	if err != nil {
		log.Printf("failed to launch render job: %v", err)
	}

	writeJSON(w, http.StatusOK, fetchRepoResponse{
		Owner:       owner,
		Repo:        repo,
		TotalFiles:  len(files),
		Files:       files,
		Ingestion:   summary,
		RenderJobID: jobID,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.VideoStatus())
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.AgentStatus())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		s.handleMessage(conn, msg)
	}
}

// handleMessage drives one websocket request: a repository URL triggers
// the fetch+ingest pipeline with streamed progress, anything else is
// treated as a search query.
func (s *Server) handleMessage(conn *websocket.Conn, msg Message) {
	ctx := context.Background()

	if owner, repo, err := githubrepo.ParseRepoURL(msg.Content); err == nil {
		s.sendMessage(conn, "status", fmt.Sprintf("Fetching %s/%s", owner, repo))

		files, err := s.fetcher.FetchRepository(ctx, owner, repo)
		if err != nil {
			s.sendMessage(conn, "error", err.Error())
			return
		}
		s.sendMessage(conn, "status", fmt.Sprintf("Fetched %d files", len(files)))

		summary := s.ingestor.Ingest(ctx, files, owner, repo)
		s.sendMessage(conn, "status", fmt.Sprintf("Ingested %d/%d files (%d skipped, %d failed)",
			summary.Ingested, summary.Total, summary.Skipped, summary.Failed))

		if jobID, err := s.jobs.Launch(msg.Content); err == nil {
			s.sendMessage(conn, "status", fmt.Sprintf("Render job %s launched", jobID))
		}
		return
	}

	result, err := s.searcher.Search(ctx, search.Request{Query: msg.Content})
	if err != nil {
		s.sendMessage(conn, "error", err.Error())
		return
	}

	if err := conn.WriteJSON(Message{Type: "response", Content: result.Summary, Data: result}); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType string, content string) {
	msg := Message{
		Type:    msgType,
		Content: content,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// upstreamStatus maps fetcher errors onto the HTTP surface.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, githubrepo.ErrRepoNotFound):
		return http.StatusNotFound
	case errors.Is(err, githubrepo.ErrRateLimited):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
