// Package playbook implements the dual-memory rule store for the Veritas
// fact-checking pipeline.
//
// Knowledge lives in two independently versioned partitions: the detection
// memory accumulates rules for recognizing false claims, the trust memory
// rules for recognizing true claims. Each partition is one JSON document on
// disk with a version counter and a case counter; mutations flow through a
// structured delta applied by the FileStore, which snapshots the prior file
// into a history directory before every mutating overwrite.
//
// Rules produced by an LLM curator are frequently malformed in predictable
// ways (string arithmetic in evidence_count, out-of-range confidence,
// invented type names). Decoding therefore never fails on recoverable input:
// bad fields are coerced to safe values and every coercion is recorded in a
// Report so callers can audit what was repaired.
package playbook

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// ─── Enums ───────────────────────────────────────────────────────────────────

// RuleType categorizes what kind of knowledge a rule carries.
type RuleType string

const (
	TypeStrategy     RuleType = "strategy"
	TypeToolTemplate RuleType = "tool_template"
	TypePitfall      RuleType = "pitfall"
)

// MemoryType identifies which partition a rule lives in.
type MemoryType string

const (
	MemoryDetection MemoryType = "detection"
	MemoryTrust     MemoryType = "trust"
)

// ValidMemory reports whether m names an existing partition.
func ValidMemory(m MemoryType) bool {
	return m == MemoryDetection || m == MemoryTrust
}

// ─── Rule ────────────────────────────────────────────────────────────────────

// Rule is the atomic unit of stored knowledge: a condition→action pair with
// confidence and provenance. Rules are never hard-deleted — deprecation flips
// Active to false and keeps the record for audit and id lookups.
type Rule struct {
	RuleID        string    `json:"rule_id"`
	Type          RuleType  `json:"type"`
	Condition     string    `json:"condition"`
	Action        string    `json:"action"`
	Description   string    `json:"description"`
	Confidence    float64   `json:"confidence"`
	EvidenceCount int       `json:"evidence_count"`
	Active        bool      `json:"active"`
	CreatedFrom   string    `json:"created_from,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	// ParentRule is a weak reference set when this rule refines another.
	// It is not checked for existence and never reconciled with the
	// parent's state.
	ParentRule string `json:"parent_rule,omitempty"`
	// MemoryType is derived from the partition the rule was read from.
	// It is attached at load time and stripped again before persisting —
	// the document a rule lives in is the authority, not the field.
	MemoryType MemoryType `json:"memory_type,omitempty"`
}

// Report collects coercion observations made while decoding or repairing
// rules. Issues describe what was wrong; Fixes describe what was done about
// it. Both grow in lockstep for field coercions, so an empty Fixes slice
// means the input was clean.
type Report struct {
	Issues []string `json:"issues"`
	Fixes  []string `json:"fixes"`
}

func (r *Report) add(issue, fix string) {
	r.Issues = append(r.Issues, issue)
	r.Fixes = append(r.Fixes, fix)
	log.Printf("WARNING: playbook: %s; %s", issue, fix)
}

// Merge appends another report's entries onto r.
func (r *Report) Merge(other *Report) {
	r.Issues = append(r.Issues, other.Issues...)
	r.Fixes = append(r.Fixes, other.Fixes...)
}

// Clean reports whether no issues were observed.
func (r *Report) Clean() bool {
	return len(r.Issues) == 0
}

// rawRule mirrors Rule with lenient field types so malformed documents can be
// decoded before coercion. Pointer fields distinguish "absent" from zero.
type rawRule struct {
	RuleID        string          `json:"rule_id"`
	Type          string          `json:"type"`
	Condition     string          `json:"condition"`
	Action        string          `json:"action"`
	Description   string          `json:"description"`
	Confidence    json.RawMessage `json:"confidence"`
	EvidenceCount json.RawMessage `json:"evidence_count"`
	Active        *bool           `json:"active"`
	CreatedFrom   string          `json:"created_from"`
	CreatedAt     json.RawMessage `json:"created_at"`
	ParentRule    string          `json:"parent_rule"`
	MemoryType    string          `json:"memory_type"`
}

// DecodeRule decodes one rule from JSON, repairing recoverable field damage.
// It fails only when the bytes are not a JSON object at all; everything else
// is coerced and logged into the report.
func DecodeRule(data []byte) (Rule, *Report, error) {
	var raw rawRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return Rule{}, nil, fmt.Errorf("decoding rule: %w", err)
	}
	rep := &Report{}
	return ruleFromRaw(raw, rep), rep, nil
}

// ruleFromRaw converts a leniently decoded rule into a valid Rule, recording
// every coercion in rep.
func ruleFromRaw(raw rawRule, rep *Report) Rule {
	id := raw.RuleID
	if id == "" {
		id = "(missing id)"
	}

	r := Rule{
		RuleID:        raw.RuleID,
		Type:          sanitizeType(id, raw.Type, rep),
		Condition:     raw.Condition,
		Action:        raw.Action,
		Description:   raw.Description,
		Confidence:    sanitizeConfidence(id, raw.Confidence, rep),
		EvidenceCount: sanitizeEvidenceCount(id, raw.EvidenceCount, rep),
		Active:        true,
		CreatedFrom:   raw.CreatedFrom,
		CreatedAt:     parseTimestamp(raw.CreatedAt),
		ParentRule:    raw.ParentRule,
	}
	if raw.Active != nil {
		r.Active = *raw.Active
	}
	return r
}

// sanitizeType coerces unknown rule types to strategy. The LLM curator
// occasionally invents categories ("meta", "heuristic") that the store does
// not recognize.
func sanitizeType(ruleID, v string, rep *Report) RuleType {
	switch RuleType(v) {
	case TypeStrategy, TypeToolTemplate, TypePitfall:
		return RuleType(v)
	}
	rep.add(
		fmt.Sprintf("rule %s: invalid type %q", ruleID, v),
		fmt.Sprintf("rule %s: type set to %q", ruleID, TypeStrategy),
	)
	return TypeStrategy
}

// sanitizeConfidence clamps numeric confidence into [0,1] and defaults
// non-numeric input to 0.5.
func sanitizeConfidence(ruleID string, v json.RawMessage, rep *Report) float64 {
	if len(v) == 0 {
		return 0.5
	}

	var conf float64
	if err := json.Unmarshal(v, &conf); err != nil {
		// Some documents carry confidence as a quoted number.
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if parsed, perr := strconv.ParseFloat(strings.TrimSpace(s), 64); perr == nil {
				conf = parsed
			} else {
				rep.add(
					fmt.Sprintf("rule %s: non-numeric confidence %q", ruleID, s),
					fmt.Sprintf("rule %s: confidence defaulted to 0.5", ruleID),
				)
				return 0.5
			}
		} else {
			rep.add(
				fmt.Sprintf("rule %s: non-numeric confidence %s", ruleID, string(v)),
				fmt.Sprintf("rule %s: confidence defaulted to 0.5", ruleID),
			)
			return 0.5
		}
	}

	switch {
	case conf < 0.0:
		rep.add(
			fmt.Sprintf("rule %s: confidence %v below 0.0", ruleID, conf),
			fmt.Sprintf("rule %s: confidence clamped to 0.0", ruleID),
		)
		return 0.0
	case conf > 1.0:
		rep.add(
			fmt.Sprintf("rule %s: confidence %v above 1.0", ruleID, conf),
			fmt.Sprintf("rule %s: confidence clamped to 1.0", ruleID),
		)
		return 1.0
	}
	return conf
}

// sanitizeEvidenceCount coerces evidence_count to a non-negative integer.
// The curator has been observed emitting arithmetic expressions like
// "3 (original value + 1)" — those reset to 1 rather than guessing.
func sanitizeEvidenceCount(ruleID string, v json.RawMessage, rep *Report) int {
	if len(v) == 0 {
		return 1
	}

	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		if n < 0 {
			rep.add(
				fmt.Sprintf("rule %s: negative evidence_count %v", ruleID, n),
				fmt.Sprintf("rule %s: evidence_count reset to 1", ruleID),
			)
			return 1
		}
		if n != float64(int(n)) {
			rep.add(
				fmt.Sprintf("rule %s: fractional evidence_count %v", ruleID, n),
				fmt.Sprintf("rule %s: evidence_count truncated to %d", ruleID, int(n)),
			)
		}
		return int(n)
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		rep.add(
			fmt.Sprintf("rule %s: evidence_count is %s", ruleID, string(v)),
			fmt.Sprintf("rule %s: evidence_count reset to 1", ruleID),
		)
		return 1
	}

	// Known malformed pattern: the model narrates its own increment.
	if strings.Contains(strings.ToLower(s), "original value + 1") || strings.Contains(s, "+") {
		rep.add(
			fmt.Sprintf("rule %s: evidence_count is expression %q", ruleID, s),
			fmt.Sprintf("rule %s: evidence_count reset to 1", ruleID),
		)
		return 1
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || parsed < 0 {
		rep.add(
			fmt.Sprintf("rule %s: unparseable evidence_count %q", ruleID, s),
			fmt.Sprintf("rule %s: evidence_count reset to 1", ruleID),
		)
		return 1
	}
	rep.add(
		fmt.Sprintf("rule %s: evidence_count is string %q", ruleID, s),
		fmt.Sprintf("rule %s: evidence_count converted to %d", ruleID, parsed),
	)
	return parsed
}

// timestampLayouts are tried in order when a created_at / last_updated value
// is not strict RFC 3339. The original pipeline wrote naive local timestamps
// for a while, so old documents carry second and microsecond variants.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp decodes a timestamp leniently, falling back to the current
// time when the value is absent or unreadable.
func parseTimestamp(v json.RawMessage) time.Time {
	if len(v) == 0 {
		return time.Now().UTC()
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return time.Now().UTC()
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}
