package config

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/statetree/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Inspect.Port != DefaultPort {
		t.Errorf("Inspect.Port = %d, want %d", cfg.Inspect.Port, DefaultPort)
	}
	if cfg.Inspect.Host != DefaultHost {
		t.Errorf("Inspect.Host = %q, want %q", cfg.Inspect.Host, DefaultHost)
	}
	if cfg.Metrics.Namespace != DefaultNamespace {
		t.Errorf("Metrics.Namespace = %q, want %q", cfg.Metrics.Namespace, DefaultNamespace)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Load(tmpDir); err == nil {
		t.Error("Expected error for missing config")
	}

	content := `
name: todos
inspect:
  port: 9090
  read_only: true
metrics:
  namespace: app
log:
  level: debug
  format: json
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "todos" || cfg.Inspect.Port != 9090 || !cfg.Inspect.ReadOnly {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Inspect.Host != DefaultHost {
		t.Errorf("default host not applied: %q", cfg.Inspect.Host)
	}
	if cfg.Metrics.Namespace != "app" {
		t.Errorf("Metrics.Namespace = %q", cfg.Metrics.Namespace)
	}
	if cfg.InspectAddress() != "localhost:9090" {
		t.Errorf("InspectAddress() = %q", cfg.InspectAddress())
	}
	if cfg.Path() != filepath.Join(tmpDir, ConfigFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v", level)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	content := `{"inspect": {"port": 8081, "metrics_path": "-"}, "tracing": {"tracer_name": "x"}}`
	if err := os.WriteFile(filepath.Join(tmpDir, "statetree.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Inspect.Port != 8081 || cfg.Tracing.TracerName != "x" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MetricsPath() != "" {
		t.Errorf("expected metrics disabled, got %q", cfg.MetricsPath())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"invalid yaml", "inspect: [", "S030"},
		{"unknown key", "inspekt: {}\n", "S030"},
		{"bad port", "inspect:\n  port: 70000\n", "S031"},
		{"bad level", "log:\n  level: loud\n", "S031"},
		{"bad format", "log:\n  format: xml\n", "S031"},
		{"bad metrics path", "inspect:\n  metrics_path: metrics\n", "S031"},
		{"unsorted buckets", "metrics:\n  buckets: [2, 1]\n", "S031"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(path)
			var se *errors.StateError
			if !stderrors.As(err, &se) {
				t.Fatalf("expected StateError, got %v", err)
			}
			if se.Code != tt.code {
				t.Errorf("Code = %q, want %q (%v)", se.Code, tt.code, err)
			}
		})
	}
}

func TestLoadErrorLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := "name: demo\ninspect:\n  prot: 1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path)
	var se *errors.StateError
	if !stderrors.As(err, &se) || se.Code != "S030" {
		t.Fatalf("expected S030, got %v", err)
	}
	if se.Location == nil || se.Location.Line != 3 {
		t.Errorf("expected location at line 3, got %v", se.Location)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Inspect.Port != DefaultPort || cfg.Path() != "" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{ConfigFileName, "statetree.json"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := New()
			cfg.Name = "saved"
			cfg.Inspect.Port = 9191
			if err := cfg.SaveTo(filepath.Join(dir, name)); err != nil {
				t.Fatalf("SaveTo() error = %v", err)
			}
			loaded, err := Load(dir)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.Name != "saved" || loaded.Inspect.Port != 9191 {
				t.Errorf("unexpected config %+v", loaded)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := New()
	cfg.Name = "todos"
	cfg.Log.Format = "json"
	cfg.Logger(&buf).Info("hello")
	if !strings.Contains(buf.String(), `"tree":"todos"`) || !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("unexpected log output %s", buf.String())
	}

	buf.Reset()
	cfg.Log.Format = "text"
	cfg.Logger(&buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record should be filtered at info level: %s", buf.String())
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ConfigFileName), []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	found, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot() error = %v", err)
	}
	want, _ := filepath.Abs(root)
	if found != want {
		t.Errorf("FindProjectRoot() = %q, want %q", found, want)
	}
}
