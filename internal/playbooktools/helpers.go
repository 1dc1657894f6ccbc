// Package playbooktools provides MCP tool handlers for the dual-memory
// playbook store.
//
// Each tool follows the same pattern:
//   - A struct with dependencies (playbook.FileStore, history.Store)
//     injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the request and returns a result
//
// The boundary is deliberately narrow: one read tool and one update tool
// carry the whole protocol between the reasoning agents and the store; the
// rest are operator conveniences (status, validation, audit queries).
package playbooktools

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// objectArg extracts an object argument and re-encodes it as JSON so the
// playbook package's lenient decoders can take over. Returns nil when the
// key is absent or not an object.
func objectArg(req mcp.CallToolRequest, key string) json.RawMessage {
	v, ok := req.GetArguments()[key].(map[string]any)
	if !ok {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// mapArg extracts an object argument as a plain map.
func mapArg(req mcp.CallToolRequest, key string) map[string]any {
	v, ok := req.GetArguments()[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

// splitIDs parses a comma-separated id list, dropping empty segments.
func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
