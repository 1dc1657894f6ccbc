// Veritas: dual-memory playbook MCP server
//
// Maintains the versioned rule store (detection + trust memories) that
// fact-checking agents read from and write to over MCP.
//
// Usage:
//
//	veritas serve              # Start MCP server (stdio transport)
//	veritas validate [files]   # Validate and auto-fix playbook files
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/veritaslabs/veritas/internal/config"
	"github.com/veritaslabs/veritas/internal/playbook"
	veritasserver "github.com/veritaslabs/veritas/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "validate":
		if err := runValidate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("veritas v%s\n", veritasserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, cleanup, err := veritasserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Logs go to stderr — stdout belongs to the MCP stdio transport.
	return server.ServeStdio(s)
}

// runValidate checks and repairs playbook files without starting the server.
// With no file arguments it targets the configured live partition documents.
func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	noBackup := fs.Bool("no-backup", false, "do not write .bak copies before fixing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	paths := fs.Args()
	if len(paths) == 0 {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		paths = []string{
			filepath.Join(cfg.DataDir, playbook.DetectionFile),
			filepath.Join(cfg.DataDir, playbook.TrustFile),
		}
	}

	validator, err := playbook.NewValidator()
	if err != nil {
		return err
	}

	totalIssues, totalFixes, failed := 0, 0, 0
	for _, report := range validator.ValidateFiles(paths, !*noBackup) {
		fmt.Printf("%s:\n", report.Path)
		if report.Err != "" {
			fmt.Printf("  ERROR: %s\n", report.Err)
			failed++
			continue
		}
		if len(report.Issues) == 0 {
			fmt.Println("  no issues found")
			continue
		}
		for i := range report.Fixes {
			fmt.Printf("  %s → %s\n", report.Issues[i], report.Fixes[i])
		}
		totalIssues += len(report.Issues)
		totalFixes += len(report.Fixes)
	}

	fmt.Printf("\nSummary: found %d issues, applied %d fixes\n", totalIssues, totalFixes)
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be validated", failed)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Veritas v%s — dual-memory playbook MCP server

Usage:
  veritas serve                       Start the MCP server (stdio transport)
  veritas validate [flags] [files]    Validate and auto-fix playbook files
  veritas version                     Print the version

Validate flags:
  --no-backup    Do not write .bak copies before fixing

Configuration:
  VERITAS_DATA_DIR and config.yaml control where the playbook lives
  (default ~/.veritas/playbook).

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "veritas": {
        "command": "veritas",
        "args": ["serve"]
      }
    }
  }
`, veritasserver.Version)
}
