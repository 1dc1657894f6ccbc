package playbook

import (
	"encoding/json"
	"testing"
	"time"
)

// ─── DecodeRule / coercion ──────────────────────────────────────────────────

func TestDecodeRule_CleanInput(t *testing.T) {
	data := []byte(`{
		"rule_id": "shr-00001",
		"type": "pitfall",
		"condition": "IF source_type=social_media",
		"action": "Requires cross-validation",
		"description": "Social media posts need corroboration",
		"confidence": 0.8,
		"evidence_count": 3,
		"active": true,
		"created_from": "case-042",
		"created_at": "2025-03-01T10:00:00Z"
	}`)

	r, rep, err := DecodeRule(data)
	if err != nil {
		t.Fatalf("DecodeRule() error: %v", err)
	}
	if !rep.Clean() {
		t.Errorf("expected clean report, got issues: %v", rep.Issues)
	}
	if r.RuleID != "shr-00001" {
		t.Errorf("RuleID = %q, want shr-00001", r.RuleID)
	}
	if r.Type != TypePitfall {
		t.Errorf("Type = %q, want pitfall", r.Type)
	}
	if r.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", r.Confidence)
	}
	if r.EvidenceCount != 3 {
		t.Errorf("EvidenceCount = %d, want 3", r.EvidenceCount)
	}
	if !r.Active {
		t.Error("Active should be true")
	}
}

func TestDecodeRule_InvalidType(t *testing.T) {
	data := []byte(`{"rule_id": "r1", "type": "meta", "confidence": 0.5, "evidence_count": 1}`)

	r, rep, err := DecodeRule(data)
	if err != nil {
		t.Fatalf("DecodeRule() error: %v", err)
	}
	if r.Type != TypeStrategy {
		t.Errorf("Type = %q, want strategy", r.Type)
	}
	if len(rep.Issues) != 1 || len(rep.Fixes) != 1 {
		t.Errorf("report = %d issues / %d fixes, want 1/1", len(rep.Issues), len(rep.Fixes))
	}
}

func TestDecodeRule_ConfidenceClamping(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  float64
		fixed bool
	}{
		{"above range", `1.5`, 1.0, true},
		{"below range", `-0.2`, 0.0, true},
		{"in range", `0.75`, 0.75, false},
		{"boundary low", `0.0`, 0.0, false},
		{"boundary high", `1.0`, 1.0, false},
		{"non-numeric", `"very confident"`, 0.5, true},
		{"quoted number", `"0.7"`, 0.7, false},
		{"missing", ``, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"rule_id": "r1", "type": "strategy", "evidence_count": 1`
			if tt.raw != "" {
				doc += `, "confidence": ` + tt.raw
			}
			doc += `}`

			r, rep, err := DecodeRule([]byte(doc))
			if err != nil {
				t.Fatalf("DecodeRule() error: %v", err)
			}
			if r.Confidence != tt.want {
				t.Errorf("Confidence = %v, want %v", r.Confidence, tt.want)
			}
			if tt.fixed && rep.Clean() {
				t.Error("expected a recorded fix")
			}
			if !tt.fixed && !rep.Clean() {
				t.Errorf("unexpected fixes: %v", rep.Fixes)
			}
		})
	}
}

func TestDecodeRule_EvidenceCountCoercion(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  int
		fixed bool
	}{
		{"integer", `4`, 4, false},
		{"parseable string", `"3"`, 3, true},
		{"llm arithmetic", `"3 (original value + 1)"`, 1, true},
		{"bare expression", `"2+1"`, 1, true},
		{"unparseable string", `"several"`, 1, true},
		{"negative", `-2`, 1, true},
		{"fractional", `2.5`, 2, true},
		{"boolean", `true`, 1, true},
		{"missing", ``, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"rule_id": "r1", "type": "strategy", "confidence": 0.5`
			if tt.raw != "" {
				doc += `, "evidence_count": ` + tt.raw
			}
			doc += `}`

			r, rep, err := DecodeRule([]byte(doc))
			if err != nil {
				t.Fatalf("DecodeRule() error: %v", err)
			}
			if r.EvidenceCount != tt.want {
				t.Errorf("EvidenceCount = %d, want %d", r.EvidenceCount, tt.want)
			}
			if tt.fixed && rep.Clean() {
				t.Error("expected a recorded fix")
			}
			if !tt.fixed && !rep.Clean() {
				t.Errorf("unexpected fixes: %v", rep.Fixes)
			}
		})
	}
}

func TestDecodeRule_DocumentedHeuristic(t *testing.T) {
	// The canonical malformed curator output: a narrated increment.
	data := []byte(`{"rule_id": "r1", "type": "strategy", "confidence": 0.5,
		"evidence_count": "3 (original value + 1)"}`)

	r, rep, err := DecodeRule(data)
	if err != nil {
		t.Fatalf("DecodeRule() error: %v", err)
	}
	if r.EvidenceCount != 1 {
		t.Errorf("EvidenceCount = %d, want 1", r.EvidenceCount)
	}
	if len(rep.Issues) != 1 {
		t.Errorf("issues = %d, want exactly 1", len(rep.Issues))
	}
	if len(rep.Fixes) != 1 {
		t.Errorf("fixes = %d, want exactly 1", len(rep.Fixes))
	}
}

func TestDecodeRule_ActiveDefaultsTrue(t *testing.T) {
	r, _, err := DecodeRule([]byte(`{"rule_id": "r1", "type": "strategy"}`))
	if err != nil {
		t.Fatalf("DecodeRule() error: %v", err)
	}
	if !r.Active {
		t.Error("Active should default to true")
	}

	r, _, err = DecodeRule([]byte(`{"rule_id": "r1", "type": "strategy", "active": false}`))
	if err != nil {
		t.Fatalf("DecodeRule() error: %v", err)
	}
	if r.Active {
		t.Error("explicit active=false should be preserved")
	}
}

func TestDecodeRule_NotAnObject(t *testing.T) {
	if _, _, err := DecodeRule([]byte(`[1, 2, 3]`)); err == nil {
		t.Error("expected error for non-object input")
	}
}

// ─── Timestamp parsing ──────────────────────────────────────────────────────

func TestParseTimestamp_Layouts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `"2025-03-01T10:00:00Z"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"naive seconds", `"2025-03-01T10:00:00"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"naive micros", `"2025-03-01T10:00:00.123456"`, time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC)},
		{"space separated", `"2025-03-01 10:00:00"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTimestamp(json.RawMessage(tt.raw))
			if !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_GarbageFallsBackToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	got := parseTimestamp(json.RawMessage(`"not a time"`))
	if got.Before(before) {
		t.Errorf("expected fallback to now, got %v", got)
	}
}
