package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FINCHAT_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "server.token", typ: kString, env: "FINCHAT_SERVER_TOKEN",
		apply: func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
	},
	{
		key: "ollama.base_url", typ: kString, env: "FINCHAT_OLLAMA_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
	},
	{
		key: "ollama.sql_model", typ: kString, env: "FINCHAT_OLLAMA_SQL_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.SQLModel = v.(string) },
	},
	{
		key: "ollama.answer_model", typ: kString, env: "FINCHAT_OLLAMA_ANSWER_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.AnswerModel = v.(string) },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "FINCHAT_OLLAMA_EMBED_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FINCHAT_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "FINCHAT_RETRIEVAL_TOP_K",
		apply: func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
	},
	{
		key: "workflow.generation_timeout", typ: kString, env: "FINCHAT_WORKFLOW_GENERATION_TIMEOUT",
		apply: func(cfg *Config, v any) { cfg.Workflow.GenerationTimeout = v.(string) },
	},
	{
		key: "workflow.synthesis_timeout", typ: kString, env: "FINCHAT_WORKFLOW_SYNTHESIS_TIMEOUT",
		apply: func(cfg *Config, v any) { cfg.Workflow.SynthesisTimeout = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "FINCHAT_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
