package playbook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error: %v", err)
	}
	return v
}

// ─── Field repair ────────────────────────────────────────────────────────────

func TestValidateAndFix_RepairsFields(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "detection_memory.json", `{
		"version": "v1.2",
		"rules": [
			{"rule_id": "r1", "type": "heuristic", "confidence": 1.4, "evidence_count": "3 (original value + 1)"},
			{"rule_id": "r2", "type": "strategy", "confidence": 0.6, "evidence_count": 2}
		],
		"total_cases_processed": 4
	}`)

	v := newValidator(t)
	report := v.ValidateAndFix(path, false)

	if report.Err != "" {
		t.Fatalf("unexpected error: %s", report.Err)
	}
	if !report.Rewrote {
		t.Fatal("damaged file should have been rewritten")
	}
	if len(report.Issues) != 3 || len(report.Fixes) != 3 {
		t.Errorf("issues/fixes = %d/%d, want 3/3 (%v / %v)",
			len(report.Issues), len(report.Fixes), report.Issues, report.Fixes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("rewritten file is not valid JSON: %v", err)
	}
	rules := doc["rules"].([]any)
	r1 := rules[0].(map[string]any)
	if r1["type"] != "strategy" {
		t.Errorf("type = %v, want strategy", r1["type"])
	}
	if r1["confidence"].(float64) != 1.0 {
		t.Errorf("confidence = %v, want clamped 1.0", r1["confidence"])
	}
	if r1["evidence_count"].(float64) != 1 {
		t.Errorf("evidence_count = %v, want expression reset to 1", r1["evidence_count"])
	}
}

func TestValidateAndFix_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "trust_memory.json", `{
		"version": "v1.0",
		"rules": [{"rule_id": "r1", "type": "banana", "confidence": -3, "evidence_count": "lots"}]
	}`)

	v := newValidator(t)
	first := v.ValidateAndFix(path, false)
	if !first.Rewrote {
		t.Fatal("first pass should rewrite")
	}

	second := v.ValidateAndFix(path, false)
	if second.Err != "" {
		t.Fatalf("second pass error: %s", second.Err)
	}
	if second.Rewrote || len(second.Issues) != 0 || len(second.Fixes) != 0 {
		t.Errorf("second pass must be a no-op, got %+v", second)
	}
}

func TestValidateAndFix_CleanFileUntouched(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"version": "v1.1",
		"rules": [{"rule_id": "r1", "type": "strategy", "confidence": 0.5, "evidence_count": 1, "active": true}],
		"total_cases_processed": 1
	}`
	path := writeDoc(t, dir, "detection_memory.json", content)

	v := newValidator(t)
	report := v.ValidateAndFix(path, true)
	if report.Rewrote || len(report.Fixes) != 0 {
		t.Errorf("clean file must not be rewritten: %+v", report)
	}

	data, _ := os.ReadFile(path)
	if string(data) != content {
		t.Error("clean file bytes changed")
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Error("no backup should exist for a clean file")
	}
}

// ─── Backups ─────────────────────────────────────────────────────────────────

func TestValidateAndFix_WritesBackup(t *testing.T) {
	dir := t.TempDir()
	original := `{"version": "v1.0", "rules": [{"rule_id": "r1", "type": "wrong"}]}`
	path := writeDoc(t, dir, "detection_memory.json", original)

	v := newValidator(t)
	report := v.ValidateAndFix(path, true)
	if !report.Rewrote {
		t.Fatal("expected a rewrite")
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(bak) != original {
		t.Error("backup must hold the pre-fix bytes")
	}
}

// ─── Structural failures ─────────────────────────────────────────────────────

func TestValidateAndFix_SchemaViolationLeavesFile(t *testing.T) {
	dir := t.TempDir()
	original := `{"rules": [{"rule_id": "r1", "type": "wrong"}]}`
	path := writeDoc(t, dir, "broken.json", original)

	v := newValidator(t)
	report := v.ValidateAndFix(path, true)
	if report.Err == "" {
		t.Fatal("missing version must be a schema error")
	}
	if report.Rewrote {
		t.Error("schema-invalid file must not be rewritten")
	}

	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Error("schema-invalid file bytes changed")
	}
}

func TestValidateAndFix_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "garbage.json", `{not json`)

	v := newValidator(t)
	report := v.ValidateAndFix(path, false)
	if report.Err == "" {
		t.Error("invalid JSON must be reported as an error")
	}
}

func TestValidateAndFix_MissingFile(t *testing.T) {
	v := newValidator(t)
	report := v.ValidateAndFix(filepath.Join(t.TempDir(), "absent.json"), false)
	if report.Err == "" {
		t.Error("unreadable file must be reported as an error")
	}
}

// ─── Unknown fields ──────────────────────────────────────────────────────────

func TestValidateAndFix_PreservesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "detection_memory.json", `{
		"version": "v1.0",
		"rules": [{"rule_id": "r1", "type": "bogus", "confidence": 0.5, "evidence_count": 1, "notes": "keep me"}],
		"extra_top_level": 42
	}`)

	v := newValidator(t)
	if report := v.ValidateAndFix(path, false); !report.Rewrote {
		t.Fatal("expected a rewrite")
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"notes": "keep me"`) {
		t.Error("unknown rule field dropped")
	}
	if !strings.Contains(string(data), `"extra_top_level": 42`) {
		t.Error("unknown top-level field dropped")
	}
}

func TestValidateFiles_Batch(t *testing.T) {
	dir := t.TempDir()
	good := writeDoc(t, dir, "good.json", `{"version": "v1.0", "rules": []}`)
	bad := writeDoc(t, dir, "bad.json", `broken`)

	v := newValidator(t)
	reports := v.ValidateFiles([]string{good, bad}, false)
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	if reports[0].Err != "" {
		t.Errorf("good file errored: %s", reports[0].Err)
	}
	if reports[1].Err == "" {
		t.Error("bad file should carry an error")
	}
}

func TestValidateAndFix_InvalidMemoryTag(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "detection_memory.json", `{
		"version": "v1.0",
		"rules": [{"rule_id": "r1", "type": "strategy", "confidence": 0.5, "evidence_count": 1, "memory_type": "episodic"}]
	}`)

	v := newValidator(t)
	report := v.ValidateAndFix(path, false)
	if !report.Rewrote {
		t.Fatal("expected a rewrite")
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"memory_type": "detection"`) {
		t.Errorf("memory_type should be reset to detection:\n%s", data)
	}
}
