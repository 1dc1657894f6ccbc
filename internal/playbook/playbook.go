package playbook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InitialVersion is the version a freshly created partition starts at.
const InitialVersion = "v1.0"

// Playbook is one memory partition: an ordered rule collection plus its
// version and throughput counters. Rule order is issuance order.
type Playbook struct {
	Version             string    `json:"version"`
	Rules               []Rule    `json:"rules"`
	LastUpdated         time.Time `json:"last_updated"`
	TotalCasesProcessed int       `json:"total_cases_processed"`

	// loadedVersion remembers the version the document carried when it was
	// read from disk. Save compares it against the live file to detect a
	// concurrent writer.
	loadedVersion string
}

// NewPlaybook returns an empty partition at the initial version.
func NewPlaybook() *Playbook {
	return &Playbook{
		Version:     InitialVersion,
		Rules:       []Rule{},
		LastUpdated: time.Now().UTC(),
	}
}

// playbookJSON mirrors the persisted document with lenient rule decoding and
// pointer fields so structurally missing keys can be told apart from zero
// values.
type playbookJSON struct {
	Version             *string         `json:"version"`
	Rules               *[]rawRule      `json:"rules"`
	LastUpdated         json.RawMessage `json:"last_updated"`
	TotalCasesProcessed int             `json:"total_cases_processed"`
}

// DecodePlaybook parses a partition document. Field-level damage inside rules
// is repaired and reported; a document that is not valid JSON or is missing
// the version or rules keys is a structural failure and returns an error —
// callers must not guess a default rule set.
func DecodePlaybook(data []byte) (*Playbook, *Report, error) {
	var doc playbookJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing playbook document: %w", err)
	}
	if doc.Version == nil {
		return nil, nil, fmt.Errorf("playbook document missing %q key", "version")
	}
	if doc.Rules == nil {
		return nil, nil, fmt.Errorf("playbook document missing %q key", "rules")
	}

	rep := &Report{}
	rules := make([]Rule, 0, len(*doc.Rules))
	for _, raw := range *doc.Rules {
		rules = append(rules, ruleFromRaw(raw, rep))
	}

	pb := &Playbook{
		Version:             *doc.Version,
		Rules:               rules,
		LastUpdated:         parseTimestamp(doc.LastUpdated),
		TotalCasesProcessed: doc.TotalCasesProcessed,
		loadedVersion:       *doc.Version,
	}
	return pb, rep, nil
}

// ActiveRules returns the rules not yet deprecated, in issuance order.
func (p *Playbook) ActiveRules() []Rule {
	active := make([]Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

// FindRule returns a pointer to the rule with the given id, or nil.
// Deprecated rules are still findable — backward id lookups are the reason
// they are never physically removed.
func (p *Playbook) FindRule(ruleID string) *Rule {
	for i := range p.Rules {
		if p.Rules[i].RuleID == ruleID {
			return &p.Rules[i]
		}
	}
	return nil
}

// AddRule appends a rule and refreshes the update timestamp. It does not
// touch the version — versioning belongs to the delta engine.
func (p *Playbook) AddRule(r Rule) {
	p.Rules = append(p.Rules, r)
	p.LastUpdated = time.Now().UTC()
}

// BumpRuleEvidence sets a rule's confidence and credits it one more
// supporting case. Returns ErrRuleNotFound when no rule matches.
func (p *Playbook) BumpRuleEvidence(ruleID string, confidence float64) error {
	r := p.FindRule(ruleID)
	if r == nil {
		return fmt.Errorf("rule %q: %w", ruleID, ErrRuleNotFound)
	}
	r.Confidence = min(max(confidence, 0.0), 1.0)
	r.EvidenceCount++
	p.LastUpdated = time.Now().UTC()
	return nil
}

// BumpVersion advances the partition's minor version by exactly one.
// This is the only version-mutation path in the store.
func (p *Playbook) BumpVersion() error {
	next, err := bumpMinor(p.Version)
	if err != nil {
		return err
	}
	p.Version = next
	return nil
}

// bumpMinor parses a vMAJOR.MINOR version string and increments MINOR.
func bumpMinor(version string) (string, error) {
	trimmed := strings.TrimPrefix(version, "v")
	major, minor, ok := strings.Cut(trimmed, ".")
	if !ok || trimmed == version {
		return "", fmt.Errorf("malformed version %q (want vMAJOR.MINOR)", version)
	}
	m, err := strconv.Atoi(minor)
	if err != nil {
		return "", fmt.Errorf("malformed version %q: %w", version, err)
	}
	return fmt.Sprintf("v%s.%d", major, m+1), nil
}
