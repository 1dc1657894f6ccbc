package playbooktools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/veritaslabs/veritas/internal/history"
)

// ─── HistoryRecentTool ──────────────────────────────────────────────────────

// HistoryRecentTool handles the history_recent MCP tool.
type HistoryRecentTool struct {
	audit *history.Store
}

// NewHistoryRecentTool creates a HistoryRecentTool with the given audit store.
func NewHistoryRecentTool(audit *history.Store) *HistoryRecentTool {
	return &HistoryRecentTool{audit: audit}
}

// Definition returns the MCP tool definition for history_recent.
func (t *HistoryRecentTool) Definition() mcp.Tool {
	return mcp.NewTool("history_recent",
		mcp.WithDescription(
			"Show the most recent playbook updates from the audit log, newest first.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default 20)"),
		),
	)
}

// Handle processes the history_recent tool call.
func (t *HistoryRecentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", 20)

	entries, err := t.audit.Recent(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to query history: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No playbook updates recorded yet."), nil
	}

	counts, err := t.audit.Counts()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to count history: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Recent Playbook Updates (%d shown)\n\n", len(entries))
	fmt.Fprintf(&sb, "Recorded updates: detection %d | trust %d\n\n", counts.Detection, counts.Trust)
	writeEntries(&sb, entries)

	return mcp.NewToolResultText(sb.String()), nil
}

// ─── HistoryCaseTool ────────────────────────────────────────────────────────

// HistoryCaseTool handles the history_case MCP tool.
type HistoryCaseTool struct {
	audit *history.Store
}

// NewHistoryCaseTool creates a HistoryCaseTool with the given audit store.
func NewHistoryCaseTool(audit *history.Store) *HistoryCaseTool {
	return &HistoryCaseTool{audit: audit}
}

// Definition returns the MCP tool definition for history_case.
func (t *HistoryCaseTool) Definition() mcp.Tool {
	return mcp.NewTool("history_case",
		mcp.WithDescription(
			"Show every playbook update recorded for one case id, oldest first. "+
				"Set delete=true to remove the case's audit entries instead.",
		),
		mcp.WithString("case_id",
			mcp.Required(),
			mcp.Description("Case id to look up"),
		),
		mcp.WithBoolean("delete",
			mcp.Description("Delete the case's entries instead of listing them"),
		),
	)
}

// Handle processes the history_case tool call.
func (t *HistoryCaseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caseID := req.GetString("case_id", "")
	if caseID == "" {
		return mcp.NewToolResultError("'case_id' is required"), nil
	}

	if boolArg(req, "delete", false) {
		n, err := t.audit.DeleteCase(caseID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to delete case history: %v", err)), nil
		}
		if n == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("no history for case: %s", caseID)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted %d audit entries for case %s", n, caseID)), nil
	}

	entries, err := t.audit.ByCase(caseID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to query history: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no history for case: %s", caseID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Case %s (%d updates)\n\n", caseID, len(entries))
	writeEntries(&sb, entries)

	return mcp.NewToolResultText(sb.String()), nil
}

func writeEntries(sb *strings.Builder, entries []history.Entry) {
	for _, e := range entries {
		fmt.Fprintf(sb, "- [%s] %s on %s memory", e.AppliedAt, e.Action, e.TargetMemory)
		if e.RuleID != "" {
			fmt.Fprintf(sb, " (rule %s)", e.RuleID)
		}
		fmt.Fprintf(sb, " %s → %s", e.VersionBefore, e.VersionAfter)
		if e.Verdict != "" {
			fmt.Fprintf(sb, " | verdict: %s", e.Verdict)
		}
		if e.Reason != "" {
			fmt.Fprintf(sb, "\n  %s", e.Reason)
		}
		sb.WriteString("\n")
	}
}
