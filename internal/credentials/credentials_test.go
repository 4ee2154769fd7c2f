package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	content := `[keys]
weather_api = "wk-123"
status_api = "sk-456"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write error: %v", err)
	}

	store, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if v, ok := store.Get("weather_api"); !ok || v != "wk-123" {
		t.Errorf("weather_api wrong: %q, %v", v, ok)
	}
	if v, ok := store.Get("status_api"); !ok || v != "sk-456" {
		t.Errorf("status_api wrong: %q, %v", v, ok)
	}
	if _, ok := store.Get("missing_api"); ok {
		t.Error("missing key should not resolve")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	if err := os.WriteFile(path, []byte("[keys\nbroken"), 0600); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestGet_EnvFallback(t *testing.T) {
	t.Setenv("DEMO_FALLBACK_KEY", "env-789")

	var store *Store
	if v, ok := store.Get("demo_fallback_key"); !ok || v != "env-789" {
		t.Errorf("env fallback wrong: %q, %v", v, ok)
	}

	store = &Store{Keys: map[string]string{"demo_fallback_key": "file-000"}}
	if v, _ := store.Get("demo_fallback_key"); v != "file-000" {
		t.Errorf("file should take priority, got %q", v)
	}
}

func TestHas(t *testing.T) {
	store := &Store{Keys: map[string]string{"a": "1", "empty": ""}}
	if !store.Has("a") {
		t.Error("a should resolve")
	}
	if store.Has("empty") {
		t.Error("empty value should not resolve")
	}
}
