// Command undercurrent-mcp exposes the journal and insight engine over
// the Model Context Protocol's stdio transport, so MCP-capable agents
// can append entries and inspect themes on the owner's behalf.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ameliahart/undercurrent"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func main() {
	dbPath := flag.String("db", "./undercurrent.db", "path to SQLite database")
	provider := flag.String("provider", "ollama", "extraction provider: ollama or openai")
	model := flag.String("model", "", "extraction model (provider default if empty)")
	ollamaURL := flag.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	flag.Parse()

	engine, err := undercurrent.NewEngine(undercurrent.EngineConfig{
		DBPath:        *dbPath,
		Provider:      *provider,
		Model:         *model,
		OllamaBaseURL: *ollamaURL,
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "undercurrent-mcp: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := mcpserver.ServeStdio(newServer(engine)); err != nil {
		fmt.Fprintf(os.Stderr, "undercurrent-mcp: %v\n", err)
		os.Exit(1)
	}
}
