// Package cmd provides CLI commands for CardSage.
//
// Commands:
//   - serve: HTTP API server for card price questions
//   - cli: Interactive terminal chat with Bubble Tea TUI
//   - ingest: Load card price records into the catalog
//   - mcp: Model Context Protocol server for editor integration
//
// Signal handling and graceful shutdown are implemented for all
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cardsage/cardsage/internal/log"
)

// Execute is the main entry point for the CardSage CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "cli":
		return runCLI()
	case "ingest":
		return runIngest()
	case "mcp":
		return runMCP()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("CardSage - Pokemon card price assistant")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cardsage serve [addr]      Start HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  cardsage cli               Start interactive chat mode")
	fmt.Println("  cardsage ingest --csv F    Index card records from a CSV file")
	fmt.Println("  cardsage ingest --url U    Index card records from a price listing page")
	fmt.Println("  cardsage mcp               Start MCP server (for Claude Desktop/Cursor)")
	fmt.Println("  cardsage --version         Show version information")
	fmt.Println("  cardsage --help            Show this help")
	fmt.Println()
	fmt.Println("CLI Commands (in interactive mode):")
	fmt.Println("  /help                      Show available commands")
	fmt.Println("  /clear                     Start a fresh conversation")
	fmt.Println("  /exit, /quit               Exit CardSage")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY             Required: Gemini API key")
	fmt.Println("  DEBUG                      Optional: Enable debug logging")
}
