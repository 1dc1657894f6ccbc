package playbooktools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/veritaslabs/veritas/internal/playbook"
)

// ValidateTool handles the playbook_validate MCP tool.
type ValidateTool struct {
	store *playbook.FileStore
}

// NewValidateTool creates a ValidateTool with the given store.
func NewValidateTool(store *playbook.FileStore) *ValidateTool {
	return &ValidateTool{store: store}
}

// Definition returns the MCP tool definition for playbook_validate.
func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("playbook_validate",
		mcp.WithDescription(
			"Validate and auto-fix playbook files: coerce string evidence counts, clamp confidence into [0,1], "+
				"repair invalid rule types. Defaults to both live partition files. Running it twice reports zero "+
				"issues the second time.",
		),
		mcp.WithString("files",
			mcp.Description("Comma-separated file paths (default: the live detection and trust documents)"),
		),
		mcp.WithBoolean("backup",
			mcp.Description("Write a .bak copy before rewriting a file that needed fixes (default true)"),
		),
	)
}

// Handle processes the playbook_validate tool call.
func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := splitIDs(req.GetString("files", ""))
	if len(paths) == 0 {
		paths = []string{
			filepath.Join(t.store.Dir(), playbook.DetectionFile),
			filepath.Join(t.store.Dir(), playbook.TrustFile),
		}
	}
	backup := boolArg(req, "backup", true)

	validator, err := playbook.NewValidator()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create validator: %v", err)), nil
	}
	reports := validator.ValidateFiles(paths, backup)

	var sb strings.Builder
	totalIssues, totalFixes := 0, 0
	for _, r := range reports {
		fmt.Fprintf(&sb, "## %s\n\n", filepath.Base(r.Path))
		if r.Err != "" {
			fmt.Fprintf(&sb, "ERROR: %s\n", r.Err)
		}
		if len(r.Issues) == 0 && r.Err == "" {
			sb.WriteString("No issues found.\n")
		}
		for i := range r.Fixes {
			fmt.Fprintf(&sb, "- %s → %s\n", r.Issues[i], r.Fixes[i])
		}
		sb.WriteString("\n")
		totalIssues += len(r.Issues)
		totalFixes += len(r.Fixes)
	}
	fmt.Fprintf(&sb, "Summary: found %d issues, applied %d fixes across %d files.\n",
		totalIssues, totalFixes, len(reports))

	return mcp.NewToolResultText(sb.String()), nil
}
