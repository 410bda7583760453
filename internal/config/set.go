package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// KeyValue is one dotted config key and its rendered value.
type KeyValue struct {
	Key   string
	Value string
}

// ShowAll renders the effective configuration as ordered key/value pairs.
// The API token is masked.
func ShowAll(cfg Config) []KeyValue {
	render := map[string]string{
		"server.port":                 strconv.Itoa(cfg.Server.Port),
		"server.token":                maskToken(cfg.Server.Token),
		"ollama.base_url":             cfg.Ollama.BaseURL,
		"ollama.sql_model":            cfg.Ollama.SQLModel,
		"ollama.answer_model":         cfg.Ollama.AnswerModel,
		"ollama.embed_model":          cfg.Ollama.EmbedModel,
		"storage.data_dir":            cfg.Storage.DataDir,
		"retrieval.top_k":             strconv.Itoa(cfg.Retrieval.TopK),
		"workflow.generation_timeout": cfg.Workflow.GenerationTimeout,
		"workflow.synthesis_timeout":  cfg.Workflow.SynthesisTimeout,
		"log.level":                   cfg.Log.Level,
	}

	out := make([]KeyValue, 0, len(specs))
	for _, s := range specs {
		out = append(out, KeyValue{Key: s.key, Value: render[s.key]})
	}
	return out
}

func maskToken(token string) string {
	if token == "" {
		return "(unset)"
	}
	return "(set)"
}

// SetKey validates and persists a single config value to the file backend.
func SetKey(key, value string) error {
	return setKeyAt(configFilePath(), key, value)
}

func setKeyAt(path, key, value string) error {
	var spec *keySpec
	for i := range specs {
		if specs[i].key == key {
			spec = &specs[i]
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("unknown config key %q", key)
	}

	var raw json.RawMessage
	switch spec.typ {
	case kString:
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		raw = data
	case kInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config key %s: expected integer, got %q", key, value)
		}
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		raw = data
	}

	values := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	values[key] = raw

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureToken returns the configured API bearer token, generating and
// persisting a random one on first run so clients and server agree.
func EnsureToken(cfg Config) (string, error) {
	if cfg.Server.Token != "" {
		return cfg.Server.Token, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := SetKey("server.token", token); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return token, nil
}
