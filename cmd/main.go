package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/abhay-lal/Visper/pkg/agent"
	"github.com/abhay-lal/Visper/pkg/config"
	"github.com/abhay-lal/Visper/pkg/corpus"
	"github.com/abhay-lal/Visper/pkg/githubrepo"
	"github.com/abhay-lal/Visper/pkg/llm"
	"github.com/abhay-lal/Visper/pkg/search"
	"github.com/abhay-lal/Visper/pkg/store"
	"github.com/abhay-lal/Visper/server"
)

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "agent":
			if err := runAgent(args[1:]); err != nil {
				log.Fatal(err)
			}
			return
		case "ingest":
			if err := runIngest(args[1:]); err != nil {
				log.Fatal(err)
			}
			return
		case "ask":
			if err := runAsk(args[1:]); err != nil {
				log.Fatal(err)
			}
			return
		case "serve":
			args = args[1:]
		}
	}

	if err := runServe(args); err != nil {
		log.Fatal(err)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	port := fs.Int("port", 0, "HTTP port")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	components, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer components.store.Close()

	jobs := agent.NewManager(agent.ManagerConfig{
		OutputDir:  cfg.Render.OutputDir,
		StaleAfter: cfg.Agent.StaleAfter,
		ConfigPath: *configPath,
	})

	srv := server.New(server.Config{Port: cfg.Server.Port},
		components.fetcher, components.ingestor, components.engine, jobs)

	return srv.Run()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("config error: %v", e)
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	return cfg, nil
}

// components bundles the pipeline pieces shared by the subcommands.
type components struct {
	fetcher  *githubrepo.Fetcher
	embedder *llm.Embedder
	store    *store.VectorStore
	chat     *llm.ChatEngine
	ingestor *corpus.Ingestor
	engine   *search.Engine
}

func buildComponents(cfg *config.Config) (*components, error) {
	fetcher, err := githubrepo.NewWithConfig(githubrepo.FetcherConfig{
		Token:      cfg.GitHub.Token,
		APIBaseURL: cfg.GitHub.APIBaseURL,
		RateLimit:  cfg.GitHub.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fetcher: %v", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbedModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %v", err)
	}

	chat, err := llm.NewChatWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	ingestor := corpus.NewWithConfig(corpus.IngestorConfig{
		MinContentLength: cfg.Ingest.MinContentLength,
		ChunkSize:        cfg.Ingest.ChunkSize,
		ChunkOverlap:     cfg.Ingest.ChunkOverlap,
		MaxAttempts:      cfg.Ingest.MaxAttempts,
	}, embedder, vectorStore)

	engine := search.NewWithConfig(search.EngineConfig{SummaryEnabled: true},
		embedder, vectorStore, chat)

	return &components{
		fetcher:  fetcher,
		embedder: embedder,
		store:    vectorStore,
		chat:     chat,
		ingestor: ingestor,
		engine:   engine,
	}, nil
}
