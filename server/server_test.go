package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/pkg/githubrepo"
	"github.com/abhay-lal/Visper/pkg/search"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	files []models.FetchedFile
	err   error
}

func (f *fakeFetcher) FetchRepository(context.Context, string, string) ([]models.FetchedFile, error) {
	return f.files, f.err
}

type fakeIngestor struct {
	summary models.IngestionSummary
}

func (f *fakeIngestor) Ingest(_ context.Context, files []models.FetchedFile, _, _ string) models.IngestionSummary {
	return f.summary
}

var errSearchDown = errors.New("search backend down")

type fakeSearcher struct {
	result  *models.SearchResult
	err     error
	lastReq search.Request
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) (*models.SearchResult, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeJobs struct {
	jobID    string
	launched []string
	video    models.JobStatus
	agent    models.AgentStatus
}

func (f *fakeJobs) Launch(repoURL string) (string, error) {
	f.launched = append(f.launched, repoURL)
	return f.jobID, nil
}

func (f *fakeJobs) VideoStatus() models.JobStatus   { return f.video }
func (f *fakeJobs) AgentStatus() models.AgentStatus { return f.agent }

func testServer(fetcher Fetcher, ingestor Ingestor, searcher Searcher, jobs JobManager) *Server {
	return New(Config{}, fetcher, ingestor, searcher, jobs)
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestFetchRepoEndpoint(t *testing.T) {
	fetcher := &fakeFetcher{files: []models.FetchedFile{
		{Path: "main.go", Name: "main.go", Type: "file", Content: "package main"},
	}}
	ingestor := &fakeIngestor{summary: models.IngestionSummary{Total: 1, Ingested: 1}}
	jobs := &fakeJobs{jobID: "job-123"}

	srv := testServer(fetcher, ingestor, &fakeSearcher{}, jobs)
	rec := postJSON(t, srv.Handler(), "/fetch-repo",
		map[string]string{"repo_url": "https://github.com/octocat/demo"})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Owner       string                  `json:"owner"`
		Repo        string                  `json:"repo"`
		TotalFiles  int                     `json:"total_files"`
		Ingestion   models.IngestionSummary `json:"ingestion"`
		RenderJobID string                  `json:"render_job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "octocat", resp.Owner)
	assert.Equal(t, "demo", resp.Repo)
	assert.Equal(t, 1, resp.TotalFiles)
	assert.Equal(t, 1, resp.Ingestion.Ingested)
	assert.Equal(t, "job-123", resp.RenderJobID)
	assert.Equal(t, []string{"https://github.com/octocat/demo"}, jobs.launched)
}

func TestFetchRepoInvalidURL(t *testing.T) {
	srv := testServer(&fakeFetcher{}, &fakeIngestor{}, &fakeSearcher{}, &fakeJobs{})
	rec := postJSON(t, srv.Handler(), "/fetch-repo", map[string]string{"repo_url": "not-a-valid-url"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestFetchRepoInvalidJSON(t *testing.T) {
	srv := testServer(&fakeFetcher{}, &fakeIngestor{}, &fakeSearcher{}, &fakeJobs{})

	req := httptest.NewRequest(http.MethodPost, "/fetch-repo", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchRepoUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", githubrepo.ErrRepoNotFound, http.StatusNotFound},
		{"rate limited", githubrepo.ErrRateLimited, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(&fakeFetcher{err: tt.err}, &fakeIngestor{}, &fakeSearcher{}, &fakeJobs{})
			rec := postJSON(t, srv.Handler(), "/fetch-repo",
				map[string]string{"repo_url": "https://github.com/octocat/gone"})

			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &fakeSearcher{result: &models.SearchResult{
		Query:        "what is this",
		Summary:      "A demo repository.",
		TotalResults: 1,
	}}
	srv := testServer(&fakeFetcher{}, &fakeIngestor{}, searcher, &fakeJobs{})

	rec := postJSON(t, srv.Handler(), "/search", search.Request{
		Query: "what is this",
		Repo:  "demo",
		Limit: 3,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is this", searcher.lastReq.Query)
	assert.Equal(t, "demo", searcher.lastReq.Repo)
	assert.Equal(t, 3, searcher.lastReq.Limit)

	var result models.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "A demo repository.", result.Summary)
}

func TestSearchEmptyQuery(t *testing.T) {
	srv := testServer(&fakeFetcher{}, &fakeIngestor{}, &fakeSearcher{}, &fakeJobs{})
	rec := postJSON(t, srv.Handler(), "/search", search.Request{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoStatusEndpoint(t *testing.T) {
	jobs := &fakeJobs{video: models.JobStatus{
		ID:        "job-123",
		Status:    models.JobCompleted,
		GCSUri:    "gs://demo-bucket/final.mp4",
		PublicURL: "https://storage.googleapis.com/demo-bucket/final.mp4",
		UpdatedAt: time.Now().UTC(),
	}}
	srv := testServer(&fakeFetcher{}, &fakeIngestor{}, &fakeSearcher{}, jobs)

	req := httptest.NewRequest(http.MethodGet, "/video-status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status models.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.JobCompleted, status.Status)
	assert.Equal(t, "gs://demo-bucket/final.mp4", status.GCSUri)
	assert.Equal(t, "https://storage.googleapis.com/demo-bucket/final.mp4", status.PublicURL)
}

func TestAgentStatusEndpoint(t *testing.T) {
	jobs := &fakeJobs{agent: models.AgentStatus{
		Running: true,
		PID:     4242,
		RepoURL: "https://github.com/octocat/demo",
	}}
	srv := testServer(&fakeFetcher{}, &fakeIngestor{}, &fakeSearcher{}, jobs)

	req := httptest.NewRequest(http.MethodGet, "/agent-status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status models.AgentStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Running)
	assert.Equal(t, 4242, status.PID)
}

func dialWebSocket(t *testing.T, srv *Server) *websocket.Conn {
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestWebSocketRepoURLRunsPipeline(t *testing.T) {
	fetcher := &fakeFetcher{files: []models.FetchedFile{
		{Path: "main.go", Name: "main.go", Type: "file", Content: "package main"},
	}}
	ingestor := &fakeIngestor{summary: models.IngestionSummary{Total: 1, Ingested: 1}}
	jobs := &fakeJobs{jobID: "job-123"}

	conn := dialWebSocket(t, testServer(fetcher, ingestor, &fakeSearcher{}, jobs))
	require.NoError(t, conn.WriteJSON(Message{
		Type:    "message",
		Content: "https://github.com/octocat/demo",
	}))

	var statuses []string
	for i := 0; i < 4; i++ {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "status", msg.Type)
		statuses = append(statuses, msg.Content)
	}

	assert.Equal(t, "Fetching octocat/demo", statuses[0])
	assert.Equal(t, "Fetched 1 files", statuses[1])
	assert.Contains(t, statuses[2], "Ingested 1/1 files")
	assert.Equal(t, "Render job job-123 launched", statuses[3])
	assert.Equal(t, []string{"https://github.com/octocat/demo"}, jobs.launched)
}

func TestWebSocketQueryMessage(t *testing.T) {
	searcher := &fakeSearcher{result: &models.SearchResult{
		Query:        "what does this repository do",
		Summary:      "A demo repository.",
		TotalResults: 1,
	}}

	conn := dialWebSocket(t, testServer(&fakeFetcher{}, &fakeIngestor{}, searcher, &fakeJobs{}))
	require.NoError(t, conn.WriteJSON(Message{
		Type:    "message",
		Content: "what does this repository do",
	}))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "response", msg.Type)
	assert.Equal(t, "A demo repository.", msg.Content)
	assert.NotNil(t, msg.Data)
	assert.Equal(t, "what does this repository do", searcher.lastReq.Query)
}

func TestWebSocketSearchError(t *testing.T) {
	searcher := &fakeSearcher{err: errSearchDown}

	conn := dialWebSocket(t, testServer(&fakeFetcher{}, &fakeIngestor{}, searcher, &fakeJobs{}))
	require.NoError(t, conn.WriteJSON(Message{
		Type:    "message",
		Content: "what does this repository do",
	}))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "search backend down")
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(&fakeFetcher{}, &fakeIngestor{}, &fakeSearcher{}, &fakeJobs{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
