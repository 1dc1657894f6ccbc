package playbook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action enumerates the delta operations the store understands.
type Action string

const (
	ActionAdd       Action = "add_rule"
	ActionUpdate    Action = "update_rule"
	ActionDeprecate Action = "deprecate_rule"
	ActionRefine    Action = "refine_rule"
	ActionNone      Action = "no_action"
)

// Sentinel errors surfaced by the delta engine. Callers match with
// errors.Is to distinguish "update applied" from "update dropped".
var (
	// ErrRuleNotFound means update_rule or deprecate_rule named a rule id
	// that does not exist in the target partition.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrVersionConflict means the partition file changed on disk between
	// load and save — a concurrent writer won the race.
	ErrVersionConflict = errors.New("playbook version conflict")
)

// Delta is one structured update request against a single partition. The
// curator produces one delta per processed case; no_action deltas count the
// case without touching any rule.
type Delta struct {
	Action       Action         `json:"action"`
	TargetRuleID string         `json:"target_rule_id,omitempty"`
	NewRule      *Rule          `json:"new_rule,omitempty"`
	UpdateFields map[string]any `json:"update_fields,omitempty"`
	Reason       string         `json:"reason"`
	TargetMemory MemoryType     `json:"target_memory"`
}

// Validate checks that the delta carries the payload its action requires.
func (d *Delta) Validate() error {
	switch d.Action {
	case ActionAdd:
		if d.NewRule == nil {
			return fmt.Errorf("add_rule requires new_rule")
		}
		if d.NewRule.RuleID == "" {
			return fmt.Errorf("add_rule requires new_rule.rule_id")
		}
	case ActionRefine:
		if d.NewRule == nil {
			return fmt.Errorf("refine_rule requires new_rule")
		}
		if d.NewRule.RuleID == "" {
			return fmt.Errorf("refine_rule requires new_rule.rule_id")
		}
	case ActionUpdate:
		if d.TargetRuleID == "" {
			return fmt.Errorf("update_rule requires target_rule_id")
		}
		if len(d.UpdateFields) == 0 {
			return fmt.Errorf("update_rule requires update_fields")
		}
		for name := range d.UpdateFields {
			if !updatableFields[name] {
				return fmt.Errorf("update_rule: field %q is not updatable", name)
			}
		}
	case ActionDeprecate:
		if d.TargetRuleID == "" {
			return fmt.Errorf("deprecate_rule requires target_rule_id")
		}
	case ActionNone:
		// No payload.
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}

	if !ValidMemory(d.TargetMemory) {
		return fmt.Errorf("unknown target memory %q", d.TargetMemory)
	}
	return nil
}

// Mutating reports whether the delta changes rule state. Only mutating
// deltas bump the partition version and trigger a history snapshot.
func (d *Delta) Mutating() bool {
	return d.Action != ActionNone
}

// updatableFields is the closed set of rule fields update_rule may patch.
// Everything else (ids, provenance, timestamps) is immutable once issued;
// unknown names reject the whole delta to stop schema drift from malformed
// upstream output.
var updatableFields = map[string]bool{
	"condition":      true,
	"action":         true,
	"description":    true,
	"confidence":     true,
	"evidence_count": true,
	"active":         true,
}

// applyFields patches an allowlisted set of fields onto a rule. Values for
// confidence and evidence_count pass through the same coercion as decoding,
// so a malformed patch degrades instead of corrupting the record.
func applyFields(r *Rule, fields map[string]any, rep *Report) error {
	for name, value := range fields {
		if !updatableFields[name] {
			return fmt.Errorf("field %q is not updatable", name)
		}
		switch name {
		case "condition":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("field %q: expected string, got %T", name, value)
			}
			r.Condition = s
		case "action":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("field %q: expected string, got %T", name, value)
			}
			r.Action = s
		case "description":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("field %q: expected string, got %T", name, value)
			}
			r.Description = s
		case "confidence":
			r.Confidence = sanitizeConfidence(r.RuleID, anyToRaw(value), rep)
		case "evidence_count":
			r.EvidenceCount = sanitizeEvidenceCount(r.RuleID, anyToRaw(value), rep)
		case "active":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("field %q: expected bool, got %T", name, value)
			}
			r.Active = b
		}
	}
	return nil
}

// anyToRaw re-encodes a decoded JSON value so the raw-field sanitizers can
// be reused for patch values.
func anyToRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// DecodeDelta parses a delta from JSON, coercing the embedded rule payload
// the same way partition documents are coerced.
func DecodeDelta(data []byte) (*Delta, *Report, error) {
	var raw struct {
		Action       Action          `json:"action"`
		TargetRuleID string          `json:"target_rule_id"`
		NewRule      json.RawMessage `json:"new_rule"`
		UpdateFields map[string]any  `json:"update_fields"`
		Reason       string          `json:"reason"`
		TargetMemory MemoryType      `json:"target_memory"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decoding delta: %w", err)
	}

	rep := &Report{}
	d := &Delta{
		Action:       raw.Action,
		TargetRuleID: raw.TargetRuleID,
		UpdateFields: raw.UpdateFields,
		Reason:       raw.Reason,
		TargetMemory: raw.TargetMemory,
	}
	if d.TargetMemory == "" {
		d.TargetMemory = MemoryDetection
	}
	if len(raw.NewRule) > 0 && string(raw.NewRule) != "null" {
		rule, ruleRep, err := DecodeRule(raw.NewRule)
		if err != nil {
			return nil, nil, err
		}
		rep.Merge(ruleRep)
		d.NewRule = &rule
	}
	return d, rep, nil
}
