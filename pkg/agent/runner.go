package agent

import (
	"context"
	"log"
	"time"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/internal/types"
	"github.com/abhay-lal/Visper/pkg/render"
)

type RunnerConfig struct {
	JobID             string
	Owner             string
	Repo              string
	HeartbeatInterval time.Duration
}

// Runner executes one render job inside the detached agent process and
// records its outcome in the status file.
type Runner struct {
	config   RunnerConfig
	manager  *Manager
	pipeline *render.Pipeline
	uploader types.Uploader // nil skips the upload step
}

func NewRunner(config RunnerConfig, manager *Manager, pipeline *render.Pipeline, uploader types.Uploader) *Runner {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 15 * time.Second
	}

	return &Runner{
		config:   config,
		manager:  manager,
		pipeline: pipeline,
		uploader: uploader,
	}
}

// Run drives the render pipeline to completion. Every failure ends up in
// the status file; nothing escalates to a process crash beyond the
// non-zero exit of the agent itself.
func (r *Runner) Run(ctx context.Context) error {
	now := time.Now().UTC()
	if err := r.manager.WriteStatus(models.JobStatus{
		ID:        r.config.JobID,
		Status:    models.JobLaunched,
		UpdatedAt: now,
		Heartbeat: now,
	}); err != nil {
		return err
	}

	stop := r.startHeartbeat(ctx)
	defer stop()

	artifacts, err := r.pipeline.Run(ctx, r.config.Owner, r.config.Repo)
	if err != nil {
		r.fail(err)
		return err
	}

	status := models.JobStatus{
		ID:        r.config.JobID,
		Status:    models.JobCompleted,
		UpdatedAt: time.Now().UTC(),
	}

	if r.uploader != nil && artifacts.VideoPath != "" {
		gcsURI, publicURL, err := r.uploader.Upload(ctx, artifacts.VideoPath)
		if err != nil {
			r.fail(err)
			return err
		}
		status.GCSUri = gcsURI
		status.PublicURL = publicURL
	}

	log.Printf("render job %s completed", r.config.JobID)
	return r.manager.WriteStatus(status)
}

func (r *Runner) fail(err error) {
	log.Printf("render job %s failed: %v", r.config.JobID, err)
	r.manager.FailJob(r.config.JobID, err)
}

func (r *Runner) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	ticker := time.NewTicker(r.config.HeartbeatInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.manager.Heartbeat()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
