package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Workflow  WorkflowConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type OllamaConfig struct {
	BaseURL     string
	SQLModel    string
	AnswerModel string
	EmbedModel  string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK int
}

type WorkflowConfig struct {
	// Durations kept as strings ("30s") so the file backend and env
	// layer stay string-typed; parsed at wiring time with a fallback.
	GenerationTimeout string
	SynthesisTimeout  string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8888,
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			SQLModel:    "qwen2.5-coder",
			AnswerModel: "mistral-nemo",
			EmbedModel:  "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Workflow: WorkflowConfig{
			GenerationTimeout: "30s",
			SynthesisTimeout:  "60s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and applies
// FINCHAT_* environment variable overrides on top.
//
// The backend file lives at $XDG_CONFIG_HOME/finchat/config.json
// (~/.config/finchat/config.json when XDG_CONFIG_HOME is unset).
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func configFilePath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "finchat-config.json")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "finchat", "config.json")
}

func defaultDataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "finchat-data")
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "finchat")
}
