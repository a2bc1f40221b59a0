package agent

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	return NewManager(ManagerConfig{
		OutputDir:  t.TempDir(),
		StaleAfter: time.Minute,
	})
}

func TestVideoStatusNoStatusFile(t *testing.T) {
	m := testManager(t)

	status := m.VideoStatus()
	assert.Equal(t, models.JobPending, status.Status)
	assert.Empty(t, status.GCSUri)
	assert.Empty(t, status.Error)
}

func TestVideoStatusCompleted(t *testing.T) {
	m := testManager(t)
	now := time.Now().UTC()

	require.NoError(t, m.WriteStatus(models.JobStatus{
		ID:        "job-1",
		Status:    models.JobCompleted,
		GCSUri:    "gs://demo-bucket/videos/final.mp4",
		PublicURL: "https://storage.googleapis.com/demo-bucket/videos/final.mp4",
		UpdatedAt: now,
	}))

	status := m.VideoStatus()
	assert.Equal(t, models.JobCompleted, status.Status)
	assert.Equal(t, "gs://demo-bucket/videos/final.mp4", status.GCSUri)
	assert.Equal(t, "https://storage.googleapis.com/demo-bucket/videos/final.mp4", status.PublicURL)
}

func TestVideoStatusDerivesPublicURL(t *testing.T) {
	m := testManager(t)

	require.NoError(t, m.WriteStatus(models.JobStatus{
		ID:     "job-1",
		Status: models.JobCompleted,
		GCSUri: "gs://demo-bucket/final.mp4",
	}))

	status := m.VideoStatus()
	assert.Equal(t, "https://storage.googleapis.com/demo-bucket/final.mp4", status.PublicURL)
}

func TestVideoStatusStaleHeartbeat(t *testing.T) {
	m := testManager(t)
	stale := time.Now().UTC().Add(-5 * time.Minute)

	require.NoError(t, m.WriteStatus(models.JobStatus{
		ID:        "job-1",
		Status:    models.JobLaunched,
		UpdatedAt: stale,
		Heartbeat: stale,
	}))

	status := m.VideoStatus()
	assert.Equal(t, models.JobError, status.Status)
	assert.NotEmpty(t, status.Error)

	// The stale verdict is persisted so later polls agree.
	persisted, err := m.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, models.JobError, persisted.Status)
}

func TestVideoStatusFreshHeartbeat(t *testing.T) {
	m := testManager(t)
	now := time.Now().UTC()

	require.NoError(t, m.WriteStatus(models.JobStatus{
		ID:        "job-1",
		Status:    models.JobLaunched,
		UpdatedAt: now,
		Heartbeat: now,
	}))

	status := m.VideoStatus()
	assert.Equal(t, models.JobLaunched, status.Status)
	assert.Empty(t, status.Error)
}

func TestHeartbeatRefreshesTimestamp(t *testing.T) {
	m := testManager(t)
	old := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, m.WriteStatus(models.JobStatus{
		ID:        "job-1",
		Status:    models.JobLaunched,
		UpdatedAt: old,
		Heartbeat: old,
	}))

	m.Heartbeat()

	status, err := m.ReadStatus()
	require.NoError(t, err)
	assert.True(t, status.Heartbeat.After(old))
	assert.Equal(t, models.JobLaunched, status.Status)
}

func TestLaunchWritesJobFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(ManagerConfig{
		OutputDir: dir,
		// /bin/true exits immediately; we only care about the files the
		// manager writes around the spawn.
		ExecPath: "/bin/true",
	})

	jobID, err := m.Launch("https://github.com/octocat/demo")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	status, err := m.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, jobID, status.ID)
	assert.Equal(t, models.JobLaunched, status.Status)
	assert.False(t, status.Heartbeat.IsZero())

	pidData, err := os.ReadFile(filepath.Join(dir, "agent.pid"))
	require.NoError(t, err)
	assert.NotEmpty(t, pidData)

	metaData, err := os.ReadFile(filepath.Join(dir, "agent.json"))
	require.NoError(t, err)

	var meta models.AgentStatus
	require.NoError(t, json.Unmarshal(metaData, &meta))
	assert.Equal(t, "https://github.com/octocat/demo", meta.RepoURL)
	assert.Equal(t, m.LogPath(), meta.LogFile)
	assert.Greater(t, meta.PID, 0)
}

func TestAgentArgsCarryConfigPath(t *testing.T) {
	m := NewManager(ManagerConfig{
		OutputDir:  t.TempDir(),
		ConfigPath: "/etc/visper/config.yaml",
	})

	args := m.agentArgs("https://github.com/octocat/demo", "job-1")
	assert.Equal(t, []string{
		"agent",
		"-repo-url", "https://github.com/octocat/demo",
		"-job-id", "job-1",
		"-config", "/etc/visper/config.yaml",
	}, args)
}

func TestAgentArgsWithoutConfigPath(t *testing.T) {
	m := testManager(t)

	args := m.agentArgs("https://github.com/octocat/demo", "job-1")
	assert.Equal(t, []string{
		"agent",
		"-repo-url", "https://github.com/octocat/demo",
		"-job-id", "job-1",
	}, args)
}

func TestFailJobWritesErrorStatus(t *testing.T) {
	m := testManager(t)

	m.FailJob("job-1", errors.New("no database configured"))

	status, err := m.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, "job-1", status.ID)
	assert.Equal(t, models.JobError, status.Status)
	assert.Equal(t, "no database configured", status.Error)
	assert.False(t, status.UpdatedAt.IsZero())

	// The poll endpoint reports the failure right away, not via the
	// stale-heartbeat watchdog.
	assert.Equal(t, models.JobError, m.VideoStatus().Status)
}

func TestAgentStatusNoMetaFile(t *testing.T) {
	m := testManager(t)

	status := m.AgentStatus()
	assert.False(t, status.Running)
	assert.Zero(t, status.PID)
}

func TestAgentStatusDeadProcess(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(ManagerConfig{OutputDir: dir})

	meta := models.AgentStatus{
		PID:       999999999, // beyond pid_max, cannot be alive
		RepoURL:   "https://github.com/octocat/demo",
		LogFile:   m.LogPath(),
		StartedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.json"), data, 0o644))

	status := m.AgentStatus()
	assert.False(t, status.Running)
	assert.Equal(t, meta.RepoURL, status.RepoURL)
}

func TestAgentStatusLiveProcess(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(ManagerConfig{OutputDir: dir})

	meta := models.AgentStatus{
		PID:       os.Getpid(),
		RepoURL:   "https://github.com/octocat/demo",
		StartedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.json"), data, 0o644))

	status := m.AgentStatus()
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
}
