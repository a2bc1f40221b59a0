package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/pkg/storage"
	"github.com/google/uuid"
)

// File names under the output directory. The status file is the only
// channel between the detached render process and the HTTP service;
// last write wins and readers tolerate the race.
const (
	statusFileName = "render_status.json"
	pidFileName    = "agent.pid"
	logFileName    = "agent.log"
	metaFileName   = "agent.json"
)

type ManagerConfig struct {
	OutputDir string
	// StaleAfter marks a launched job as errored once its heartbeat is
	// older than this. Zero disables the watchdog.
	StaleAfter time.Duration
	// ExecPath is the binary spawned for the agent subcommand. Defaults
	// to the current executable.
	ExecPath string
	// ConfigPath is forwarded to the agent subcommand so the detached
	// process runs with the same configuration as its parent. Empty
	// leaves the agent on default-location probing.
	ConfigPath string
}

// Manager tracks render jobs through the JSON status file and spawns the
// detached agent process that runs them.
type Manager struct {
	config ManagerConfig
}

func NewManager(config ManagerConfig) *Manager {
	if config.OutputDir == "" {
		config.OutputDir = "output"
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 2 * time.Minute
	}

	return &Manager{config: config}
}

func (m *Manager) StatusPath() string {
	return filepath.Join(m.config.OutputDir, statusFileName)
}

func (m *Manager) LogPath() string {
	return filepath.Join(m.config.OutputDir, logFileName)
}

// Launch spawns the detached agent process for the given repository and
// returns the new job ID. Launch never waits on the child; supervision
// happens through the heartbeat watchdog.
func (m *Manager) Launch(repoURL string) (string, error) {
	if err := os.MkdirAll(m.config.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %v", err)
	}

	jobID := uuid.NewString()
	now := time.Now().UTC()

	if err := m.WriteStatus(models.JobStatus{
		ID:        jobID,
		Status:    models.JobLaunched,
		UpdatedAt: now,
		Heartbeat: now,
	}); err != nil {
		return "", err
	}

	execPath := m.config.ExecPath
	if execPath == "" {
		var err error
		execPath, err = os.Executable()
		if err != nil {
			return "", fmt.Errorf("failed to resolve executable: %v", err)
		}
	}

	logFile, err := os.OpenFile(m.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open agent log: %v", err)
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, m.agentArgs(repoURL, jobID)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start agent process: %v", err)
	}

	pid := cmd.Process.Pid
	_ = os.WriteFile(filepath.Join(m.config.OutputDir, pidFileName), []byte(strconv.Itoa(pid)), 0o644)

	meta := models.AgentStatus{
		PID:       pid,
		RepoURL:   repoURL,
		LogFile:   m.LogPath(),
		StartedAt: now,
	}
	if data, err := json.Marshal(meta); err == nil {
		_ = os.WriteFile(filepath.Join(m.config.OutputDir, metaFileName), data, 0o644)
	}

	_ = cmd.Process.Release()

	return jobID, nil
}

// agentArgs builds the argv for the detached agent process. The config
// path travels with it so both processes agree on the output directory
// the status file lives in.
func (m *Manager) agentArgs(repoURL, jobID string) []string {
	args := []string{"agent", "-repo-url", repoURL, "-job-id", jobID}
	if m.config.ConfigPath != "" {
		args = append(args, "-config", m.config.ConfigPath)
	}
	return args
}

// FailJob records a terminal error for the job in the status file.
func (m *Manager) FailJob(jobID string, jobErr error) {
	_ = os.MkdirAll(m.config.OutputDir, 0o755)
	_ = m.WriteStatus(models.JobStatus{
		ID:        jobID,
		Status:    models.JobError,
		Error:     jobErr.Error(),
		UpdatedAt: time.Now().UTC(),
	})
}

// WriteStatus overwrites the job status file.
func (m *Manager) WriteStatus(status models.JobStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job status: %v", err)
	}
	if err := os.WriteFile(m.StatusPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write job status: %v", err)
	}
	return nil
}

// ReadStatus reads the raw status file without watchdog interpretation.
func (m *Manager) ReadStatus() (models.JobStatus, error) {
	var status models.JobStatus

	data, err := os.ReadFile(m.StatusPath())
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return status, fmt.Errorf("failed to decode job status: %v", err)
	}

	return status, nil
}

// Heartbeat refreshes the heartbeat timestamp on the current status.
func (m *Manager) Heartbeat() {
	status, err := m.ReadStatus()
	if err != nil {
		return
	}
	status.Heartbeat = time.Now().UTC()
	_ = m.WriteStatus(status)
}

// VideoStatus reports the render job state for the status endpoint. A
// missing status file means no render has run yet. Launched jobs whose
// heartbeat has gone stale are marked errored, and a public URL is
// derived from the gs:// URI when the writer did not record one.
func (m *Manager) VideoStatus() models.JobStatus {
	status, err := m.ReadStatus()
	if err != nil {
		return models.JobStatus{Status: models.JobPending}
	}

	if status.Status == models.JobLaunched && m.config.StaleAfter > 0 &&
		!status.Heartbeat.IsZero() && time.Since(status.Heartbeat) > m.config.StaleAfter {
		status.Status = models.JobError
		status.Error = "render job heartbeat went stale"
		status.UpdatedAt = time.Now().UTC()
		_ = m.WriteStatus(status)
	}

	if status.PublicURL == "" && status.GCSUri != "" {
		if publicURL, err := storage.PublicURL(status.GCSUri); err == nil {
			status.PublicURL = publicURL
		}
	}

	return status
}

// AgentStatus reports whether the detached agent process is still alive.
func (m *Manager) AgentStatus() models.AgentStatus {
	data, err := os.ReadFile(filepath.Join(m.config.OutputDir, metaFileName))
	if err != nil {
		return models.AgentStatus{Running: false}
	}

	var status models.AgentStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return models.AgentStatus{Running: false}
	}

	status.Running = processAlive(status.PID)
	return status
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
