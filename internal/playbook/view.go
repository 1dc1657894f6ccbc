package playbook

import (
	"fmt"
	"strings"
	"time"
)

// Merged computes the read-only union of the two partitions. Rules are
// tagged with their origin, versions combine into a composite string, and
// the counters aggregate. The result is never written back — the two
// partition documents stay the only source of truth.
func Merged(detection, trust *Playbook) *Playbook {
	rules := make([]Rule, 0, len(detection.Rules)+len(trust.Rules))
	for _, r := range detection.Rules {
		r.MemoryType = MemoryDetection
		rules = append(rules, r)
	}
	for _, r := range trust.Rules {
		r.MemoryType = MemoryTrust
		rules = append(rules, r)
	}

	// Old documents can mix naive and timezone-aware timestamps; compare
	// in UTC so max() is well-defined.
	last := detection.LastUpdated.UTC()
	if t := trust.LastUpdated.UTC(); t.After(last) {
		last = t
	}

	return &Playbook{
		Version:             fmt.Sprintf("detection:%s|trust:%s", detection.Version, trust.Version),
		Rules:               rules,
		LastUpdated:         last,
		TotalCasesProcessed: detection.TotalCasesProcessed + trust.TotalCasesProcessed,
	}
}

// Merged loads both partitions and returns their computed union.
func (s *FileStore) Merged() (*Playbook, error) {
	detection, _, err := s.Load(MemoryDetection)
	if err != nil {
		return nil, err
	}
	trust, _, err := s.Load(MemoryTrust)
	if err != nil {
		return nil, err
	}
	return Merged(detection, trust), nil
}

// Status is a compact view of the whole store for status consumers.
type Status struct {
	Version             string    `json:"version"`
	DetectionRules      int       `json:"detection_rules_count"`
	TrustRules          int       `json:"trust_rules_count"`
	TotalActiveRules    int       `json:"total_active_rules"`
	TotalCasesProcessed int       `json:"total_cases_processed"`
	LastUpdated         time.Time `json:"last_updated"`
}

// StoreStatus summarizes both partitions: composite version, active rule
// counts, aggregate throughput.
func (s *FileStore) StoreStatus() (*Status, error) {
	detection, _, err := s.Load(MemoryDetection)
	if err != nil {
		return nil, err
	}
	trust, _, err := s.Load(MemoryTrust)
	if err != nil {
		return nil, err
	}

	last := detection.LastUpdated.UTC()
	if t := trust.LastUpdated.UTC(); t.After(last) {
		last = t
	}

	da := len(detection.ActiveRules())
	ta := len(trust.ActiveRules())
	return &Status{
		Version:             fmt.Sprintf("detection:%s|trust:%s", detection.Version, trust.Version),
		DetectionRules:      da,
		TrustRules:          ta,
		TotalActiveRules:    da + ta,
		TotalCasesProcessed: detection.TotalCasesProcessed + trust.TotalCasesProcessed,
		LastUpdated:         last,
	}, nil
}

// ─── Text projections ────────────────────────────────────────────────────────
//
// The downstream reasoning component consumes rules as formatted text, not
// JSON. Two shapes exist: the detailed summary with every field, and the
// brief summary with only id, type, description, and confidence — the brief
// form bounds how much text is handed to the model, nothing more.

// Summary renders the full-detail view of all active rules in both
// partitions.
func Summary(detection, trust *Playbook) string {
	detActive := detection.ActiveRules()
	trustActive := trust.ActiveRules()

	var sb strings.Builder
	sb.WriteString("# Current Verification Playbook (Dual Memory System)\n\n")
	fmt.Fprintf(&sb, "Detection Memory: %s (%d active rules)\n", detection.Version, len(detActive))
	fmt.Fprintf(&sb, "Trust Memory: %s (%d active rules)\n", trust.Version, len(trustActive))
	fmt.Fprintf(&sb, "Total: %d active rules\n\n", len(detActive)+len(trustActive))

	if len(detActive) > 0 {
		sb.WriteString("## [DETECTION MEMORY] Rules for Identifying False Information\n\n")
		writeRuleDetails(&sb, detActive)
	}
	if len(trustActive) > 0 {
		sb.WriteString("## [TRUST MEMORY] Rules for Identifying True Information\n\n")
		writeRuleDetails(&sb, trustActive)
	}
	return sb.String()
}

func writeRuleDetails(sb *strings.Builder, rules []Rule) {
	for _, r := range rules {
		fmt.Fprintf(sb, "[%s] (%s)\n", r.RuleID, r.Type)
		fmt.Fprintf(sb, "- Condition: %s\n", r.Condition)
		fmt.Fprintf(sb, "- Action: %s\n", r.Action)
		fmt.Fprintf(sb, "- Confidence: %.2f\n", r.Confidence)
		fmt.Fprintf(sb, "- Description: %s\n\n", r.Description)
	}
}

// BriefSummary renders the compact view used by the planner to select
// applicable rules with minimal token usage. Deprecated rules are excluded.
func BriefSummary(detection, trust *Playbook) string {
	detActive := detection.ActiveRules()
	trustActive := trust.ActiveRules()

	var sb strings.Builder
	sb.WriteString("# Active Rules Brief Summary\n\n")
	fmt.Fprintf(&sb, "Detection Memory: %s | %d active rules\n", detection.Version, len(detActive))
	fmt.Fprintf(&sb, "Trust Memory: %s | %d active rules\n", trust.Version, len(trustActive))
	fmt.Fprintf(&sb, "Total: %d active rules\n\n", len(detActive)+len(trustActive))

	if len(detActive) > 0 {
		sb.WriteString("## [DETECTION MEMORY] - Rules for identifying FALSE information\n\n")
		writeRuleBriefs(&sb, detActive)
	}
	if len(trustActive) > 0 {
		sb.WriteString("## [TRUST MEMORY] - Rules for identifying TRUE information\n\n")
		writeRuleBriefs(&sb, trustActive)
	}
	return sb.String()
}

func writeRuleBriefs(sb *strings.Builder, rules []Rule) {
	for _, r := range rules {
		fmt.Fprintf(sb, "- **%s** [%s] (confidence: %.2f)\n", r.RuleID, r.Type, r.Confidence)
		fmt.Fprintf(sb, "  %s\n\n", r.Description)
	}
}

// RuleDetails renders the full record of the named rules, searching the
// active rules of both partitions. Used by the judge after rule selection.
func RuleDetails(detection, trust *Playbook, ruleIDs []string) string {
	if len(ruleIDs) == 0 {
		return "No rules selected."
	}

	active := map[string]Rule{}
	for _, r := range detection.ActiveRules() {
		r.MemoryType = MemoryDetection
		active[r.RuleID] = r
	}
	for _, r := range trust.ActiveRules() {
		r.MemoryType = MemoryTrust
		active[r.RuleID] = r
	}

	var selected []Rule
	for _, id := range ruleIDs {
		if r, ok := active[id]; ok {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return fmt.Sprintf("Selected rules %v not found in active rules.", ruleIDs)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Selected Rules Detail (%d rules)\n\n", len(selected))
	for _, r := range selected {
		fmt.Fprintf(&sb, "## [%s] %s (%s MEMORY)\n\n",
			r.RuleID, strings.ToUpper(string(r.Type)), strings.ToUpper(string(r.MemoryType)))
		fmt.Fprintf(&sb, "**Description**: %s\n\n", r.Description)
		fmt.Fprintf(&sb, "**Condition**: %s\n\n", r.Condition)
		fmt.Fprintf(&sb, "**Action**: %s\n\n", r.Action)
		fmt.Fprintf(&sb, "**Confidence**: %.2f | **Evidence Count**: %d\n\n", r.Confidence, r.EvidenceCount)
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

// ActiveRule looks a single active rule up by id, detection memory first.
// Returns nil when the id is unknown or the rule is deprecated.
func (s *FileStore) ActiveRule(ruleID string) (*Rule, error) {
	for _, m := range []MemoryType{MemoryDetection, MemoryTrust} {
		pb, _, err := s.Load(m)
		if err != nil {
			return nil, err
		}
		if r := pb.FindRule(ruleID); r != nil && r.Active {
			found := *r
			found.MemoryType = m
			return &found, nil
		}
	}
	return nil, nil
}
