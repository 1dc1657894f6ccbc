// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete stores and injects
// them into the tool handlers that depend on them. No business logic lives
// here — only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/veritaslabs/veritas/internal/config"
	"github.com/veritaslabs/veritas/internal/history"
	"github.com/veritaslabs/veritas/internal/playbook"
	"github.com/veritaslabs/veritas/internal/playbooktools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
//
// The returned cleanup function closes the audit store's database connection
// and must be called on shutdown (typically via defer). It is always non-nil
// and safe to call even if audit init failed.
func New() (*server.MCPServer, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, noop, fmt.Errorf("loading configuration: %w", err)
	}

	store, err := playbook.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, noop, fmt.Errorf("opening playbook store: %w", err)
	}

	s := server.NewMCPServer(
		"veritas",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Audit subsystem ---
	//
	// History is independent from the playbook: if it fails to initialize,
	// updates still apply and are simply not logged. We warn and register
	// the update tool without an audit store.

	cleanup := noop
	var audit *history.Store
	if cfg.AuditEnabled {
		audit, err = history.New(history.Config{DataDir: cfg.AuditDir})
		if err != nil {
			log.Printf("WARNING: audit subsystem disabled: %v", err)
			audit = nil
		} else {
			cleanup = func() { _ = audit.Close() }
		}
	}

	// --- Register playbook tools ---

	readTool := playbooktools.NewReadTool(store)
	s.AddTool(readTool.Definition(), readTool.Handle)

	updateTool := playbooktools.NewUpdateTool(store, audit)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	statusTool := playbooktools.NewStatusTool(store)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	ruleGetTool := playbooktools.NewRuleGetTool(store)
	s.AddTool(ruleGetTool.Definition(), ruleGetTool.Handle)

	validateTool := playbooktools.NewValidateTool(store)
	s.AddTool(validateTool.Definition(), validateTool.Handle)

	// --- Register audit tools ---

	if audit != nil {
		recentTool := playbooktools.NewHistoryRecentTool(audit)
		s.AddTool(recentTool.Definition(), recentTool.Handle)

		caseTool := playbooktools.NewHistoryCaseTool(audit)
		s.AddTool(caseTool.Definition(), caseTool.Handle)
	}

	return s, cleanup, nil
}

// noop is the cleanup function returned when there is nothing to clean up.
func noop() {}

// serverInstructions returns the usage guidance advertised to MCP clients.
func serverInstructions() string {
	return `Veritas maintains the dual-memory verification playbook for fact-checking agents.

Reading rules:
- playbook_read with view=brief to select candidate rules cheaply
- playbook_read with rule_ids=... to fetch the full records of selected rules
- playbook_read with view=detailed for the complete active rule set

Updating rules (one structured update per verified case):
- playbook_update with the case verdict — the verdict routes the update:
  True lands in trust memory, everything else in detection memory
- add_rule / refine_rule need new_rule; update_rule needs target_rule_id and
  update_fields; deprecate_rule needs target_rule_id; no_action only counts
  the case

Maintenance:
- playbook_status for versions and rule counts
- playbook_validate to repair malformed documents
- history_recent / history_case to audit what changed and why`
}
