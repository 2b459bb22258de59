// Package session holds the persisted CLI configuration: a JSON document
// whose "gateways" mapping stores per-gateway settings such as the login
// credential. A Session is scoped to one gateway with SetRoot before values
// are read or written.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"
)

// DefaultFile is the name of the session file in the user's home directory.
const DefaultFile = ".moziot-cli.json"

// GatewaysKey is the top-level key under which gateway scopes are stored.
const GatewaysKey = "gateways"

// Session is an in-memory configuration tree with a dirty flag.
type Session struct {
	path   string
	config map[string]any
	root   map[string]any
	dirty  bool
}

// DefaultPath returns the session file path in the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	return filepath.Join(home, DefaultFile), nil
}

// New returns an empty session that will be saved to path.
func New(path string) *Session {
	return &Session{
		path:   path,
		config: map[string]any{GatewaysKey: map[string]any{}},
	}
}

// Load reads the session file at path. A missing or unparsable file yields
// an empty session; comments and trailing commas are accepted.
func Load(path string) *Session {
	s := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("session file unreadable, starting empty", "path", path, "err", err)
		}
		return s
	}

	var cfg map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil || cfg == nil {
		slog.Debug("session file unparsable, starting empty", "path", path, "err", err)
		return s
	}
	if _, ok := cfg[GatewaysKey].(map[string]any); !ok {
		cfg[GatewaysKey] = map[string]any{}
	}
	s.config = cfg
	return s
}

// Path returns the backing file path.
func (s *Session) Path() string { return s.path }

// Dirty reports whether the session has unsaved changes.
func (s *Session) Dirty() bool { return s.dirty }

// Names returns the sorted keys of the top-level mapping stored at key,
// e.g. the configured gateway names.
func (s *Session) Names(key string) []string {
	m, _ := s.config[key].(map[string]any)
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetRoot selects config[key][value] as the scope for Get and Set, creating
// an empty mapping when it does not exist yet.
func (s *Session) SetRoot(key, value string) {
	m, ok := s.config[key].(map[string]any)
	if !ok {
		m = map[string]any{}
		s.config[key] = m
	}
	scope, ok := m[value].(map[string]any)
	if !ok {
		scope = map[string]any{}
		m[value] = scope
	}
	s.root = scope
}

// Get returns the string stored at key in the current scope, or "" when
// the key is unset, not a string, or no scope has been selected.
func (s *Session) Get(key string) string {
	if s.root == nil {
		return ""
	}
	v, _ := s.root[key].(string)
	return v
}

// Set stores value at key in the current scope and marks the session dirty.
// Without a selected scope Set does nothing.
func (s *Session) Set(key, value string) {
	if s.root == nil {
		slog.Debug("session set without a scope ignored", "key", key)
		return
	}
	s.root[key] = value
	s.dirty = true
}

// writeFile is replaced in tests to observe writes.
var writeFile = atomicWriteFile

// Save writes the session to disk if it has been modified.
func (s *Session) Save() error {
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := writeFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.dirty = false
	return nil
}
