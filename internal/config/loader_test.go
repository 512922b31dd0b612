package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replypass.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("REPLYPASS_TEST_KEY", "secret")

	path := writeConfig(t, `version: "1"
modules:
  provider.gemini:
    api_key: ${REPLYPASS_TEST_KEY}
    model: ${REPLYPASS_TEST_MODEL:-gemini-2.0-flash}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	node, ok := cfg.Modules["provider.gemini"]
	if !ok {
		t.Fatal("provider.gemini missing")
	}
	var parsed struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	}
	if err := node.Decode(&parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.APIKey != "secret" || parsed.Model != "gemini-2.0-flash" {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nmodules:\n  store.sqlite:\n    path: ${REPLYPASS_TEST_UNSET_VAR}\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "REPLYPASS_TEST_UNSET_VAR") {
		t.Fatalf("expected unresolved variable error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParse_SkipsCommentedReferences(t *testing.T) {
	cfg, err := Parse([]byte("version: \"1\"\n# api_key: ${REPLYPASS_TEST_UNSET_VAR}\nmodules: {}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("Version = %q", cfg.Version)
	}
}

func TestParse_ReportsEachMissingVariableOnce(t *testing.T) {
	_, err := Parse([]byte("a: ${REPLYPASS_TEST_B_UNSET}\nb: ${REPLYPASS_TEST_A_UNSET}\nc: ${REPLYPASS_TEST_B_UNSET}\n"))
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("err = %v, want ErrUnresolved", err)
	}
	want := "REPLYPASS_TEST_A_UNSET, REPLYPASS_TEST_B_UNSET"
	if !strings.HasSuffix(err.Error(), want) {
		t.Errorf("err = %q, want suffix %q", err, want)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("version: \"1\"\nmodulez: {}\n")); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}
