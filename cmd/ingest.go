package main

import (
	"context"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/abhay-lal/Visper/pkg/corpus"
	"github.com/abhay-lal/Visper/pkg/githubrepo"
	"github.com/abhay-lal/Visper/pkg/search"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// runIngest fetches a repository and pushes it into the corpus from the
// command line, with progress output.
func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	repoURL := fs.String("repo-url", "", "GitHub repository URL")
	fs.Parse(args)

	owner, repo, err := githubrepo.ParseRepoURL(*repoURL)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var fetchedCount int32
	fetcher, err := githubrepo.NewWithConfig(githubrepo.FetcherConfig{
		Token:      cfg.GitHub.Token,
		APIBaseURL: cfg.GitHub.APIBaseURL,
		RateLimit:  cfg.GitHub.RateLimit,
		OnProgress: func(path string) {
			atomic.AddInt32(&fetchedCount, 1)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize fetcher: %v", err)
	}

	components, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer components.store.Close()

	color.Blue("\nFetching %s/%s\n", owner, repo)
	fetchBar := getProgressBar(-1, "Fetching repository...")

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				fetchBar.Set(int(atomic.LoadInt32(&fetchedCount)))
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()

	ctx := context.Background()
	files, err := fetcher.FetchRepository(ctx, owner, repo)
	close(done)
	fetchBar.Finish()
	if err != nil {
		return fmt.Errorf("failed to fetch repository: %v", err)
	}
	color.Green("\n✓ Fetched %d files\n", len(files))

	ingestBar := getProgressBar(len(files), "Ingesting into corpus...")
	ingestor := corpus.NewWithConfig(corpus.IngestorConfig{
		MinContentLength: cfg.Ingest.MinContentLength,
		ChunkSize:        cfg.Ingest.ChunkSize,
		ChunkOverlap:     cfg.Ingest.ChunkOverlap,
		MaxAttempts:      cfg.Ingest.MaxAttempts,
		OnProgress: func(path string) {
			ingestBar.Add(1)
		},
	}, components.embedder, components.store)

	summary := ingestor.Ingest(ctx, files, owner, repo)
	ingestBar.Finish()

	color.Green("\n✓ Ingestion complete: %d ingested, %d skipped, %d failed (of %d)\n",
		summary.Ingested, summary.Skipped, summary.Failed, summary.Total)

	return nil
}

// runAsk answers a single question against the corpus.
func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	query := fs.String("query", "", "Question to ask")
	repo := fs.String("repo", "", "Restrict to a repository name")
	owner := fs.String("owner", "", "Restrict to a repository owner")
	limit := fs.Int("limit", 0, "Maximum number of results (1-20)")
	fs.Parse(args)

	if *query == "" {
		return fmt.Errorf("-query is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	components, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer components.store.Close()

	spinner := getSpinner("Searching corpus...")
	result, err := components.engine.Search(context.Background(), search.Request{
		Query: *query,
		Repo:  *repo,
		Owner: *owner,
		Limit: *limit,
	})
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	color.Cyan("\n%s\n", result.Summary)
	if len(result.Sources) > 0 {
		color.Blue("\nSources:\n")
		for _, src := range result.Sources {
			fmt.Printf("  %.3f  %s\n", src.RelevanceScore, src.FilePath)
		}
	}
	fmt.Printf("\n%d results in %dms\n", result.TotalResults, result.QueryTimeMs)

	return nil
}
