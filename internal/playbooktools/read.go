package playbooktools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/veritaslabs/veritas/internal/playbook"
)

// ReadTool handles the playbook_read MCP tool — the single read entry point
// the reasoning agents use to obtain the active rule set.
type ReadTool struct {
	store *playbook.FileStore
}

// NewReadTool creates a ReadTool with the given store.
func NewReadTool(store *playbook.FileStore) *ReadTool {
	return &ReadTool{store: store}
}

// Definition returns the MCP tool definition for playbook_read.
func (t *ReadTool) Definition() mcp.Tool {
	return mcp.NewTool("playbook_read",
		mcp.WithDescription(
			"Read the active verification rules from both memories. Use view=brief for rule selection "+
				"(compact, id + description only) and view=detailed for full conditions and actions. "+
				"Pass rule_ids to fetch the complete records of specific rules.",
		),
		mcp.WithString("view",
			mcp.Description("Projection: brief (default) or detailed"),
		),
		mcp.WithString("rule_ids",
			mcp.Description("Comma-separated rule ids; when set, returns full details for exactly those rules"),
		),
	)
}

// Handle processes the playbook_read tool call.
func (t *ReadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	detection, _, err := t.store.Load(playbook.MemoryDetection)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load detection memory: %v", err)), nil
	}
	trust, _, err := t.store.Load(playbook.MemoryTrust)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load trust memory: %v", err)), nil
	}

	if ids := splitIDs(req.GetString("rule_ids", "")); len(ids) > 0 {
		return mcp.NewToolResultText(playbook.RuleDetails(detection, trust, ids)), nil
	}

	switch view := req.GetString("view", "brief"); view {
	case "brief":
		return mcp.NewToolResultText(playbook.BriefSummary(detection, trust)), nil
	case "detailed":
		return mcp.NewToolResultText(playbook.Summary(detection, trust)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown view %q (want brief or detailed)", view)), nil
	}
}
