package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Backend abstracts persistent config storage. The default backend is a
// flat JSON object file keyed by dotted config keys ("server.port");
// tests substitute an in-memory map.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
}

// fileBackend reads a JSON object file of dotted keys. A missing file is
// not an error; every lookup simply reports not-found.
type fileBackend struct {
	path   string
	loaded bool
	values map[string]json.RawMessage
}

func newFileBackend(path string) *fileBackend {
	return &fileBackend{path: path}
}

func (f *fileBackend) load() error {
	if f.loaded {
		return nil
	}
	f.loaded = true
	f.values = map[string]json.RawMessage{}

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		return fmt.Errorf("parsing config file %s: %w", f.path, err)
	}
	return nil
}

func (f *fileBackend) GetString(key string) (string, bool, error) {
	if err := f.load(); err != nil {
		return "", false, err
	}
	raw, ok := f.values[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("config key %s: expected string: %w", key, err)
	}
	return s, true, nil
}

func (f *fileBackend) GetInt(key string) (int, bool, error) {
	if err := f.load(); err != nil {
		return 0, false, err
	}
	raw, ok := f.values[key]
	if !ok {
		return 0, false, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false, fmt.Errorf("config key %s: expected integer: %w", key, err)
	}
	return n, true, nil
}
