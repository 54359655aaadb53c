package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPromptSpecEmptyPath(t *testing.T) {
	spec, err := LoadPromptSpec("")
	if err != nil {
		t.Fatalf("empty path should yield zero spec, got %v", err)
	}
	if spec.System != "" || spec.Style.Temperature != 0 || spec.Style.MaxTokens != 0 {
		t.Errorf("expected zero spec, got %+v", spec)
	}
}

func TestLoadPromptSpecMissingFile(t *testing.T) {
	if _, err := LoadPromptSpec(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadPromptSpecFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intent.yaml")
	content := `system: >
  Pick the matching intent. The intents are:
style:
  temperature: 0.2
  max_tokens: 64
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadPromptSpec(path)
	if err != nil {
		t.Fatalf("LoadPromptSpec failed: %v", err)
	}
	if !strings.Contains(spec.System, "The intents are:") {
		t.Errorf("unexpected system text: %q", spec.System)
	}
	if spec.Style.Temperature != 0.2 || spec.Style.MaxTokens != 64 {
		t.Errorf("unexpected style: %+v", spec.Style)
	}
}

func TestLoadPromptSpecRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intent.yaml")
	if err := os.WriteFile(path, []byte("system: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPromptSpec(path); err == nil {
		t.Fatal("expected parse error")
	}
}
