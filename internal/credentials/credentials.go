// Package credentials loads named API keys from standard locations.
// It is the single chokepoint for credential access: handlers never
// read the store directly, they go through a sandbox context which
// calls Get here.
package credentials

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Store holds named API keys loaded from credentials.toml
type Store struct {
	Keys map[string]string `toml:"keys"`
}

// StandardPaths returns the credential file locations in order of priority
func StandardPaths() []string {
	paths := []string{"credentials.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "companion", "credentials.toml"))
		paths = append(paths, filepath.Join(home, ".companion", "credentials.toml"))
	}
	return paths
}

// Load loads credentials from the first available standard location
func Load() (*Store, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			store, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return store, path, nil
		}
	}
	return nil, "", nil // No credentials file found (not an error)
}

// LoadFile loads credentials from a specific file
func LoadFile(path string) (*Store, error) {
	var store Store
	if _, err := toml.DecodeFile(path, &store); err != nil {
		return nil, err
	}
	if store.Keys == nil {
		store.Keys = make(map[string]string)
	}
	return &store, nil
}

// Get resolves a named key. The file takes priority; an environment
// variable with the upper-cased name is the fallback. A nil store
// resolves from the environment only.
func (s *Store) Get(name string) (string, bool) {
	if s != nil {
		if v, ok := s.Keys[name]; ok && v != "" {
			return v, true
		}
	}
	if v := os.Getenv(strings.ToUpper(name)); v != "" {
		return v, true
	}
	return "", false
}

// Has reports whether a named key can be resolved without exposing
// its value.
func (s *Store) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}
