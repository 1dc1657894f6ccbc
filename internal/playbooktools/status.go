package playbooktools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/veritaslabs/veritas/internal/playbook"
)

// ─── StatusTool ─────────────────────────────────────────────────────────────

// StatusTool handles the playbook_status MCP tool.
type StatusTool struct {
	store *playbook.FileStore
}

// NewStatusTool creates a StatusTool with the given store.
func NewStatusTool(store *playbook.FileStore) *StatusTool {
	return &StatusTool{store: store}
}

// Definition returns the MCP tool definition for playbook_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("playbook_status",
		mcp.WithDescription(
			"Show playbook status — partition versions, active rule counts, and total cases processed.",
		),
	)
}

// Handle processes the playbook_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := t.store.StoreStatus()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get status: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Playbook Status\n\n")
	fmt.Fprintf(&sb, "- **Version**: %s\n", status.Version)
	fmt.Fprintf(&sb, "- **Detection rules (active)**: %d\n", status.DetectionRules)
	fmt.Fprintf(&sb, "- **Trust rules (active)**: %d\n", status.TrustRules)
	fmt.Fprintf(&sb, "- **Cases processed**: %d\n", status.TotalCasesProcessed)
	fmt.Fprintf(&sb, "- **Last updated**: %s\n", status.LastUpdated.Format("2006-01-02 15:04:05 MST"))

	return mcp.NewToolResultText(sb.String()), nil
}

// ─── RuleGetTool ────────────────────────────────────────────────────────────

// RuleGetTool handles the rule_get MCP tool.
type RuleGetTool struct {
	store *playbook.FileStore
}

// NewRuleGetTool creates a RuleGetTool with the given store.
func NewRuleGetTool(store *playbook.FileStore) *RuleGetTool {
	return &RuleGetTool{store: store}
}

// Definition returns the MCP tool definition for rule_get.
func (t *RuleGetTool) Definition() mcp.Tool {
	return mcp.NewTool("rule_get",
		mcp.WithDescription(
			"Look up one active rule by id, searching detection memory first, then trust memory.",
		),
		mcp.WithString("rule_id",
			mcp.Required(),
			mcp.Description("Rule id, e.g. shr-00001"),
		),
	)
}

// Handle processes the rule_get tool call.
func (t *RuleGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ruleID := req.GetString("rule_id", "")
	if ruleID == "" {
		return mcp.NewToolResultError("'rule_id' is required"), nil
	}

	rule, err := t.store.ActiveRule(ruleID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to look up rule: %v", err)), nil
	}
	if rule == nil {
		return mcp.NewToolResultError(fmt.Sprintf("rule not found: %s", ruleID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Rule ID: %s\n", rule.RuleID)
	fmt.Fprintf(&sb, "Memory Type: %s\n", strings.ToUpper(string(rule.MemoryType)))
	fmt.Fprintf(&sb, "Type: %s\n", rule.Type)
	fmt.Fprintf(&sb, "Condition: %s\n", rule.Condition)
	fmt.Fprintf(&sb, "Action: %s\n", rule.Action)
	fmt.Fprintf(&sb, "Confidence: %.2f\n", rule.Confidence)
	fmt.Fprintf(&sb, "Evidence Count: %d\n", rule.EvidenceCount)
	fmt.Fprintf(&sb, "Description: %s\n", rule.Description)
	if rule.ParentRule != "" {
		fmt.Fprintf(&sb, "Parent Rule: %s\n", rule.ParentRule)
	}
	if rule.CreatedFrom != "" {
		fmt.Fprintf(&sb, "Created From: %s\n", rule.CreatedFrom)
	}

	return mcp.NewToolResultText(sb.String()), nil
}
