package playbooktools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/veritaslabs/veritas/internal/history"
	"github.com/veritaslabs/veritas/internal/playbook"
)

// UpdateTool handles the playbook_update MCP tool — the single mutating
// entry point. One call applies exactly one delta to exactly one partition;
// the target partition is chosen server-side from the case verdict, so the
// curator cannot misroute a rule.
type UpdateTool struct {
	store *playbook.FileStore
	audit *history.Store // optional; nil disables audit recording
}

// NewUpdateTool creates an UpdateTool. audit may be nil when the history
// subsystem is unavailable — updates still apply, they are just not logged.
func NewUpdateTool(store *playbook.FileStore, audit *history.Store) *UpdateTool {
	return &UpdateTool{store: store, audit: audit}
}

// Definition returns the MCP tool definition for playbook_update.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("playbook_update",
		mcp.WithDescription(
			"Apply one structured update to the playbook: add_rule, update_rule, deprecate_rule, refine_rule, "+
				"or no_action. The verdict of the originating case decides which memory receives the update "+
				"(True → trust, anything else → detection). Returns the resulting partition state.",
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: add_rule, update_rule, deprecate_rule, refine_rule, no_action"),
		),
		mcp.WithString("verdict",
			mcp.Description("Verdict of the case that produced this update: True, False, or Unverifiable"),
		),
		mcp.WithString("case_id",
			mcp.Description("Case id for audit provenance"),
		),
		mcp.WithString("reason",
			mcp.Description("Why this update is being made (audit note)"),
		),
		mcp.WithString("target_rule_id",
			mcp.Description("Rule id to update/deprecate, or the parent id for refine_rule"),
		),
		mcp.WithObject("new_rule",
			mcp.Description("Full rule payload for add_rule/refine_rule"),
		),
		mcp.WithObject("update_fields",
			mcp.Description("Field→value patch for update_rule (condition, action, description, confidence, evidence_count, active)"),
		),
	)
}

// Handle processes the playbook_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := playbook.Action(req.GetString("action", ""))
	if action == "" {
		return mcp.NewToolResultError("'action' is required"), nil
	}

	verdict := req.GetString("verdict", "")
	caseID := req.GetString("case_id", "")

	delta := &playbook.Delta{
		Action:       action,
		TargetRuleID: req.GetString("target_rule_id", ""),
		UpdateFields: mapArg(req, "update_fields"),
		Reason:       req.GetString("reason", ""),
		TargetMemory: playbook.Classify(verdict, action),
	}

	rep := &playbook.Report{}
	if raw := objectArg(req, "new_rule"); raw != nil {
		rule, ruleRep, err := playbook.DecodeRule(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid new_rule: %v", err)), nil
		}
		rep.Merge(ruleRep)
		if rule.CreatedFrom == "" {
			rule.CreatedFrom = caseID
		}
		delta.NewRule = &rule
	}

	before, _, err := t.store.Load(delta.TargetMemory)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load %s memory: %v", delta.TargetMemory, err)), nil
	}

	result, applyRep, err := t.store.Apply(delta)
	if err != nil {
		switch {
		case errors.Is(err, playbook.ErrRuleNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("target rule not found: %v", err)), nil
		case errors.Is(err, playbook.ErrVersionConflict):
			return mcp.NewToolResultError(fmt.Sprintf("concurrent update detected, retry: %v", err)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("failed to apply update: %v", err)), nil
		}
	}
	rep.Merge(applyRep)

	t.recordAudit(caseID, verdict, delta, before.Version, result.Version)

	return mcp.NewToolResultText(t.formatResult(delta, result, rep, before.Version)), nil
}

// recordAudit best-effort logs the applied update. Audit failures never fail
// the update itself — the playbook save already succeeded.
func (t *UpdateTool) recordAudit(caseID, verdict string, d *playbook.Delta, versionBefore, versionAfter string) {
	if t.audit == nil {
		return
	}

	ruleID := d.TargetRuleID
	if d.NewRule != nil {
		ruleID = d.NewRule.RuleID
	}
	_, err := t.audit.Record(history.AddEntryParams{
		CaseID:        caseID,
		Action:        string(d.Action),
		TargetMemory:  string(d.TargetMemory),
		RuleID:        ruleID,
		Reason:        d.Reason,
		Verdict:       verdict,
		VersionBefore: versionBefore,
		VersionAfter:  versionAfter,
	})
	if err != nil {
		log.Printf("WARNING: audit record failed: %v", err)
	}
}

// formatResult renders the post-update partition state for the caller.
func (t *UpdateTool) formatResult(d *playbook.Delta, pb *playbook.Playbook, rep *playbook.Report, versionBefore string) string {
	var sb strings.Builder

	switch d.Action {
	case playbook.ActionNone:
		fmt.Fprintf(&sb, "No rule change applied (%s memory).\n", d.TargetMemory)
	case playbook.ActionAdd:
		fmt.Fprintf(&sb, "Added rule %s to %s memory.\n", d.NewRule.RuleID, d.TargetMemory)
	case playbook.ActionRefine:
		fmt.Fprintf(&sb, "Refined rule %s in %s memory (new rule %s).\n",
			d.NewRule.ParentRule, d.TargetMemory, d.NewRule.RuleID)
	case playbook.ActionUpdate:
		fmt.Fprintf(&sb, "Updated rule %s in %s memory.\n", d.TargetRuleID, d.TargetMemory)
	case playbook.ActionDeprecate:
		fmt.Fprintf(&sb, "Deprecated rule %s in %s memory.\n", d.TargetRuleID, d.TargetMemory)
	}

	if d.Mutating() {
		fmt.Fprintf(&sb, "Version: %s → %s\n", versionBefore, pb.Version)
	} else {
		fmt.Fprintf(&sb, "Version: %s (unchanged)\n", pb.Version)
	}
	fmt.Fprintf(&sb, "Active rules: %d | Cases processed: %d\n",
		len(pb.ActiveRules()), pb.TotalCasesProcessed)

	if !rep.Clean() {
		sb.WriteString("\nField corrections applied:\n")
		for _, fix := range rep.Fixes {
			fmt.Fprintf(&sb, "- %s\n", fix)
		}
	}
	return sb.String()
}
