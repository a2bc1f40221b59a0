package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/abhay-lal/Visper/internal/types"
	"github.com/abhay-lal/Visper/pkg/agent"
	"github.com/abhay-lal/Visper/pkg/githubrepo"
	"github.com/abhay-lal/Visper/pkg/llm"
	"github.com/abhay-lal/Visper/pkg/render"
	"github.com/abhay-lal/Visper/pkg/storage"
)

// runAgent is the entry point of the detached render process. It is
// spawned by the job manager and reports exclusively through the status
// file and its log.
func runAgent(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	repoURL := fs.String("repo-url", "", "GitHub repository URL")
	jobID := fs.String("job-id", "", "Render job ID")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// No config means no output dir to trust; report through the
		// default one so the failure is visible somewhere.
		agent.NewManager(agent.ManagerConfig{}).FailJob(*jobID, err)
		return err
	}

	manager := agent.NewManager(agent.ManagerConfig{
		OutputDir:  cfg.Render.OutputDir,
		StaleAfter: cfg.Agent.StaleAfter,
	})

	owner, repo, err := githubrepo.ParseRepoURL(*repoURL)
	if err != nil {
		manager.FailJob(*jobID, err)
		return err
	}

	components, err := buildComponents(cfg)
	if err != nil {
		manager.FailJob(*jobID, err)
		return err
	}
	defer components.store.Close()

	ctx := context.Background()

	// Prefer Gemini for narration when configured, otherwise reuse the
	// Ollama chat engine.
	var generator types.Generator = components.chat
	if cfg.LLM.GeminiKey != "" {
		gemini, err := llm.NewGeminiWithConfig(ctx, llm.GeminiConfig{
			APIKey: cfg.LLM.GeminiKey,
			Model:  cfg.LLM.GeminiModel,
		})
		if err != nil {
			manager.FailJob(*jobID, err)
			return err
		}
		defer gemini.Close()
		generator = gemini
	}

	readmeContext, err := components.fetcher.FetchRenderedReadme(ctx, owner, repo)
	if err != nil {
		log.Printf("no README context available for %s/%s: %v", owner, repo, err)
	}

	pipeline := render.NewWithConfig(render.PipelineConfig{
		OutputDir:     cfg.Render.OutputDir,
		SlideCount:    cfg.Render.SlideCount,
		RenderCommand: cfg.Render.Command,
		ReadmeContext: readmeContext,
	}, components.engine, generator)

	var uploader types.Uploader
	if cfg.Storage.GCSUri != "" {
		gcsUploader, err := storage.NewWithConfig(ctx, storage.UploaderConfig{
			DestinationURI: cfg.Storage.GCSUri,
		})
		if err != nil {
			manager.FailJob(*jobID, err)
			return err
		}
		defer gcsUploader.Close()
		uploader = gcsUploader
	}

	runner := agent.NewRunner(agent.RunnerConfig{
		JobID:             *jobID,
		Owner:             owner,
		Repo:              repo,
		HeartbeatInterval: cfg.Agent.HeartbeatInterval,
	}, manager, pipeline, uploader)

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("render job failed: %v", err)
	}

	return nil
}
