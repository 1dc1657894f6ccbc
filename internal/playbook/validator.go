package playbook

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema is the structural contract a partition document must meet
// before field-level repair is attempted. Field values are deliberately
// loose here — repairing them is the fixer's job, not the schema's.
const documentSchema = `{
	"type": "object",
	"required": ["version", "rules"],
	"properties": {
		"version": {"type": "string"},
		"rules": {
			"type": "array",
			"items": {"type": "object"}
		},
		"total_cases_processed": {"type": "integer", "minimum": 0}
	}
}`

// FileReport is the validation outcome for one playbook file.
type FileReport struct {
	Path    string   `json:"path"`
	Err     string   `json:"error,omitempty"`
	Issues  []string `json:"issues"`
	Fixes   []string `json:"fixes"`
	Rewrote bool     `json:"rewrote"`
}

// Validator repairs common field damage in persisted playbook files: string
// evidence counts, out-of-range confidence, invented rule types, unknown
// memory tags. It operates on the raw document so fields it does not know
// about pass through untouched, and it is idempotent — a second run over a
// fixed file reports zero issues and applies zero fixes.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the document schema once for reuse across files.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling playbook schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateFiles runs ValidateAndFix over each path and collects the
// per-file reports. Individual file failures do not stop the batch.
func (v *Validator) ValidateFiles(paths []string, backup bool) []FileReport {
	reports := make([]FileReport, 0, len(paths))
	for _, p := range paths {
		reports = append(reports, v.ValidateAndFix(p, backup))
	}
	return reports
}

// ValidateAndFix checks one playbook file and rewrites it if any rule needed
// repair. When backup is true a ".bak" copy of the original is written
// before the rewrite. Structural problems (unreadable file, invalid JSON,
// schema violation) are reported as errors and leave the file untouched.
func (v *Validator) ValidateAndFix(path string, backup bool) FileReport {
	report := FileReport{Path: path, Issues: []string{}, Fixes: []string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		report.Err = fmt.Sprintf("reading file: %v", err)
		return report
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		report.Err = fmt.Sprintf("parsing document: %v", err)
		return report
	}
	if !result.Valid() {
		for _, desc := range result.Errors() {
			report.Issues = append(report.Issues, desc.String())
		}
		report.Err = "document does not match playbook schema"
		return report
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		report.Err = fmt.Sprintf("parsing document: %v", err)
		return report
	}

	rep := &Report{}
	rules, _ := doc["rules"].([]any)
	for i, entry := range rules {
		rule, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		fixRawRule(rule, i, rep)
	}
	report.Issues = append(report.Issues, rep.Issues...)
	report.Fixes = append(report.Fixes, rep.Fixes...)

	if len(report.Fixes) == 0 {
		return report
	}

	if backup {
		if err := copyFile(path, path+".bak"); err != nil {
			report.Err = fmt.Sprintf("writing backup: %v", err)
			return report
		}
	}

	fixed, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		report.Err = fmt.Sprintf("encoding fixed document: %v", err)
		return report
	}
	if err := atomicWrite(path, fixed); err != nil {
		report.Err = fmt.Sprintf("rewriting file: %v", err)
		return report
	}
	report.Rewrote = true
	return report
}

// fixRawRule repairs one rule object in place. It only touches fields that
// are present — absent fields are the decoder's problem, not the file's.
func fixRawRule(rule map[string]any, index int, rep *Report) {
	ruleID, _ := rule["rule_id"].(string)
	if ruleID == "" {
		ruleID = fmt.Sprintf("rule_%d", index)
	}

	if v, present := rule["evidence_count"]; present {
		fixed := sanitizeEvidenceCount(ruleID, anyToRaw(v), rep)
		// Decoded JSON numbers are float64; only rewrite when the stored
		// value is not already that integer.
		if f, ok := v.(float64); !ok || f != float64(fixed) {
			rule["evidence_count"] = fixed
		}
	}

	if v, present := rule["type"]; present {
		s, _ := v.(string)
		fixed := sanitizeType(ruleID, s, rep)
		if s != string(fixed) {
			rule["type"] = string(fixed)
		}
	}

	if v, present := rule["confidence"]; present {
		fixed := sanitizeConfidence(ruleID, anyToRaw(v), rep)
		if f, ok := v.(float64); !ok || f != fixed {
			rule["confidence"] = fixed
		}
	}

	if v, present := rule["memory_type"]; present {
		s, _ := v.(string)
		if s != "" && !ValidMemory(MemoryType(s)) {
			rep.add(
				fmt.Sprintf("rule %s: invalid memory_type %q", ruleID, s),
				fmt.Sprintf("rule %s: memory_type set to %q", ruleID, MemoryDetection),
			)
			rule["memory_type"] = string(MemoryDetection)
		}
	}
}
