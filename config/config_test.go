package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/meshflow/loadbalance"
)

func TestBaseConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := BaseConfig{}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" || !cfg.Debug || cfg.Name != "meshflow" {
			t.Errorf("unexpected defaults %+v", cfg)
		}
	})

	t.Run("production environment keeps debug false", func(t *testing.T) {
		cfg := BaseConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})
}

func TestBaseConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BaseConfig
		wantErr bool
		errMsg  string
	}{
		{"valid development", BaseConfig{Name: "svc", Environment: "development"}, false, ""},
		{"valid production", BaseConfig{Name: "svc", Environment: "production"}, false, ""},
		{"missing name", BaseConfig{Environment: "production"}, true, "base.name is required"},
		{"invalid environment", BaseConfig{Name: "svc", Environment: "invalid"}, true, "base.environment must be one of"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EngineConfig
		mode    loadbalance.Mode
		wantErr bool
	}{
		{"default static", EngineConfig{}, loadbalance.ModeStatic, false},
		{"streaming by count", EngineConfig{Mode: "streaming", ChunkSize: 2}, loadbalance.ModeStreaming, false},
		{"streaming by memory", EngineConfig{Mode: "streaming", MemoryCeilingBytes: 1 << 20}, loadbalance.ModeStreaming, false},
		{"unbounded streaming", EngineConfig{Mode: "streaming"}, "", true},
		{"dynamic gets a chunk", EngineConfig{Mode: "dynamic"}, loadbalance.ModeDynamic, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.ApplyDefaults()
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
			if err != nil {
				return
			}
			sched, err := tc.cfg.Scheduler(nil)
			if err != nil {
				t.Fatal(err)
			}
			if sched.Mode() != tc.mode {
				t.Errorf("expected %s scheduler, got %s", tc.mode, sched.Mode())
			}
		})
	}
}

const meshflowYAML = `
name: meshflow-test
environment: staging
engine:
  mode: streaming
  ranks: 3
  chunk_size: 2
transport:
  compression: none
worker:
  port: 7411
  max_wait: 250ms
pipelines:
  dirs: [./defs]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshflow.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load("meshflow", WithConfigFile(writeConfig(t, meshflowYAML)), WithFileSystem(OSFileSystem{}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Mode != "streaming" || cfg.Engine.Ranks != 3 || cfg.Engine.ChunkSize != 2 {
		t.Errorf("unexpected engine %+v", cfg.Engine)
	}
	if cfg.Worker.Port != 7411 || cfg.Worker.MaxWait != 250*time.Millisecond {
		t.Errorf("unexpected worker %+v", cfg.Worker)
	}
	if cfg.Worker.Codec.Compression != "none" {
		t.Errorf("worker should inherit the transport codec, got %+v", cfg.Worker.Codec)
	}
	if !slices.Equal(cfg.Pipelines.Dirs, []string{"./defs"}) {
		t.Errorf("unexpected pipeline dirs %v", cfg.Pipelines.Dirs)
	}
	if cfg.Resource.MaxOpenHandles != 64 {
		t.Errorf("expected default handle limit, got %d", cfg.Resource.MaxOpenHandles)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MESHFLOW_ENGINE_CHUNK_SIZE", "5")
	t.Setenv("MESHFLOW_WORKER_MAX_CONCURRENT", "9")
	cfg, err := Load("meshflow", WithConfigFile(writeConfig(t, meshflowYAML)))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.ChunkSize != 5 || cfg.Worker.MaxConcurrent != 9 {
		t.Errorf("env did not override: engine %+v worker %+v", cfg.Engine, cfg.Worker)
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load("meshflow", WithConfigFile(writeConfig(t, "engine:\n  mode: sideways\n")))
	if err == nil {
		t.Fatal("expected an invalid mode to be rejected")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("meshflow", WithConfigFile("/nonexistent/meshflow.yml")); err != nil {
		t.Fatalf("a missing file leaves defaults, got %v", err)
	}
}

type mockFS struct{ files map[string]bool }

func (m *mockFS) Exists(path string) bool { return m.files[path] }

func (m *mockFS) LoadEnv(string) error { return nil }

func TestResolve(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"cmd/meshflow/config.yml": true,
		"config/.env":             true,
	}}
	files := Resolve("meshflow", LoaderConfig{FileSystem: fs})
	if files.ConfigFile != "cmd/meshflow/config.yml" || files.EnvFile != "config/.env" {
		t.Errorf("unexpected files %+v", files)
	}

	files = Resolve("meshflow", LoaderConfig{FileSystem: fs, ConfigFile: "x.yml"})
	if files.ConfigFile != "x.yml" {
		t.Errorf("explicit file ignored: %+v", files)
	}
}

func TestKeyVariants(t *testing.T) {
	got := keyVariants("ENGINE_CHUNK_SIZE")
	for _, want := range []string{"engine_chunk_size", "engine.chunk.size", "engine.chunk_size", "engine_chunk.size"} {
		if !slices.Contains(got, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
	if v := keyVariants("DEBUG"); !slices.Equal(v, []string{"debug"}) {
		t.Errorf("unexpected %v", v)
	}
}
