package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DataDir == "" || !strings.Contains(cfg.DataDir, ".veritas") {
		t.Errorf("DataDir = %q, want a path under ~/.veritas", cfg.DataDir)
	}
	if cfg.AuditDir == "" {
		t.Error("AuditDir should have a default")
	}
	if !cfg.AuditEnabled {
		t.Error("audit should be enabled by default")
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Run from an empty directory so no stray config.yaml is picked up.
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := DefaultConfig()
	if cfg.DataDir != want.DataDir || cfg.AuditDir != want.AuditDir || cfg.AuditEnabled != want.AuditEnabled {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("VERITAS_DATA_DIR", "/srv/veritas/playbook")
	t.Setenv("VERITAS_AUDIT_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DataDir != "/srv/veritas/playbook" {
		t.Errorf("DataDir = %q, want env override", cfg.DataDir)
	}
	if cfg.AuditEnabled {
		t.Error("AuditEnabled should be overridden to false")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "data_dir: /data/playbook\naudit_dir: /data/audit\naudit_enabled: false\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DataDir != "/data/playbook" || cfg.AuditDir != "/data/audit" || cfg.AuditEnabled {
		t.Errorf("Load() = %+v, want file values", cfg)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("data_dir: /from/file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	t.Setenv("VERITAS_DATA_DIR", "/from/env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DataDir != "/from/env" {
		t.Errorf("DataDir = %q, env must take precedence over file", cfg.DataDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{DataDir: "/d", AuditDir: "/a", AuditEnabled: true}, false},
		{"audit disabled allows empty audit dir", Config{DataDir: "/d", AuditEnabled: false}, false},
		{"missing data dir", Config{AuditDir: "/a", AuditEnabled: true}, true},
		{"audit enabled without dir", Config{DataDir: "/d", AuditEnabled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// chdir changes into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
