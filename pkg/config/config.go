package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type GitHubConfig struct {
	Token      string  `yaml:"token"`
	APIBaseURL string  `yaml:"api_base_url"`
	RateLimit  float64 `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	EmbedModel  string  `yaml:"embed_model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	GeminiKey   string  `yaml:"gemini_api_key"`
	GeminiModel string  `yaml:"gemini_model"`
}

type IngestConfig struct {
	MinContentLength int `yaml:"min_content_length"`
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	MaxAttempts      int `yaml:"max_attempts"`
}

type RenderConfig struct {
	OutputDir  string `yaml:"output_dir"`
	Command    string `yaml:"command"`
	SlideCount int    `yaml:"slide_count"`
}

type StorageConfig struct {
	GCSUri string `yaml:"gcs_uri"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type AgentConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

type Config struct {
	GitHub   GitHubConfig   `yaml:"github"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Render   RenderConfig   `yaml:"render"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Agent    AgentConfig    `yaml:"agent"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/visper/config.yaml"),
			"/etc/visper/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.GitHub.APIBaseURL == "" {
		config.GitHub.APIBaseURL = "https://api.github.com"
	}
	if config.GitHub.RateLimit == 0 {
		config.GitHub.RateLimit = 5
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "repo_documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.GeminiModel == "" {
		config.LLM.GeminiModel = "gemini-1.5-flash"
	}

	if config.Ingest.MinContentLength == 0 {
		config.Ingest.MinContentLength = 50
	}
	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 1000
	}
	if config.Ingest.ChunkOverlap == 0 {
		config.Ingest.ChunkOverlap = 200
	}
	if config.Ingest.MaxAttempts == 0 {
		config.Ingest.MaxAttempts = 3
	}

	if config.Render.OutputDir == "" {
		config.Render.OutputDir = "output"
	}
	if config.Render.SlideCount == 0 {
		config.Render.SlideCount = 5
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}

	if config.Agent.HeartbeatInterval == 0 {
		config.Agent.HeartbeatInterval = 15 * time.Second
	}
	if config.Agent.StaleAfter == 0 {
		config.Agent.StaleAfter = 2 * time.Minute
	}
}

func mergeWithEnv(config *Config) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.LLM.GeminiKey = key
	}
	if dir := os.Getenv("VISPER_OUTPUT_DIR"); dir != "" {
		config.Render.OutputDir = dir
	}
	if uri := os.Getenv("VISPER_GCS_URI"); uri != "" {
		config.Storage.GCSUri = uri
	}
	if command := os.Getenv("VISPER_RENDER_COMMAND"); command != "" {
		config.Render.Command = command
	}
}
