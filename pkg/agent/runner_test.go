package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/internal/types"
	"github.com/abhay-lal/Visper/pkg/render"
	"github.com/abhay-lal/Visper/pkg/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQA struct {
	err error
}

func (f *fakeQA) Search(_ context.Context, req search.Request) (*models.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.SearchResult{Query: req.Query, Summary: "Answer to: " + req.Query}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(context.Context, string) (string, error) {
	return "First paragraph.\n\nSecond paragraph.", nil
}

type fakeUploader struct {
	uploaded string
	err      error
}

func (u *fakeUploader) Upload(_ context.Context, localPath string) (string, string, error) {
	u.uploaded = localPath
	if u.err != nil {
		return "", "", u.err
	}
	return "gs://demo-bucket/final.mp4", "https://storage.googleapis.com/demo-bucket/final.mp4", nil
}

func testRunner(t *testing.T, qa *fakeQA, renderCommand string, uploader *fakeUploader) (*Runner, *Manager) {
	dir := t.TempDir()
	manager := NewManager(ManagerConfig{OutputDir: dir})
	pipeline := render.NewWithConfig(render.PipelineConfig{
		OutputDir:     dir,
		RenderCommand: renderCommand,
	}, qa, fakeGenerator{})

	runner := NewRunner(RunnerConfig{
		JobID:             "job-1",
		Owner:             "octocat",
		Repo:              "demo",
		HeartbeatInterval: time.Hour, // keep the ticker out of these tests
	}, manager, pipeline, uploaderOrNil(uploader))

	return runner, manager
}

func uploaderOrNil(u *fakeUploader) types.Uploader {
	if u == nil {
		return nil
	}
	return u
}

func TestRunnerCompletes(t *testing.T) {
	runner, manager := testRunner(t, &fakeQA{}, "", nil)

	require.NoError(t, runner.Run(context.Background()))

	status, err := manager.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, "job-1", status.ID)
	assert.Equal(t, models.JobCompleted, status.Status)
	assert.Empty(t, status.GCSUri)
}

func TestRunnerUploadsVideo(t *testing.T) {
	uploader := &fakeUploader{}
	runner, manager := testRunner(t, &fakeQA{}, "/bin/true", uploader)

	require.NoError(t, runner.Run(context.Background()))

	assert.NotEmpty(t, uploader.uploaded)

	status, err := manager.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, status.Status)
	assert.Equal(t, "gs://demo-bucket/final.mp4", status.GCSUri)
	assert.Equal(t, "https://storage.googleapis.com/demo-bucket/final.mp4", status.PublicURL)
}

func TestRunnerRecordsPipelineFailure(t *testing.T) {
	runner, manager := testRunner(t, &fakeQA{err: errors.New("corpus unavailable")}, "", nil)

	require.Error(t, runner.Run(context.Background()))

	status, err := manager.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, models.JobError, status.Status)
	assert.Contains(t, status.Error, "corpus unavailable")
}

func TestRunnerRecordsUploadFailure(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("bucket denied")}
	runner, manager := testRunner(t, &fakeQA{}, "/bin/true", uploader)

	require.Error(t, runner.Run(context.Background()))

	status, err := manager.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, models.JobError, status.Status)
	assert.Contains(t, status.Error, "bucket denied")
}
