// Package cmd contains the eloquent-chat command entry points: the HTTP
// server, database migrations, and knowledge base seeding.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Execute is the main entry point. It routes to a subcommand; with no
// arguments the HTTP server starts.
func Execute() error {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "seed":
		return runSeed(args)
	case "version", "--version", "-v":
		printVersion()
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", command)
	}
}

// initLogger builds the process logger. DEBUG in the environment enables
// debug level; LOG_FORMAT=json switches to JSON output.
func initLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func printHelp() {
	fmt.Println("eloquent-chat - retrieval-augmented chat session engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  eloquent-chat              Start the HTTP API server (default)")
	fmt.Println("  eloquent-chat serve        Start the HTTP API server")
	fmt.Println("  eloquent-chat migrate      Apply database migrations and exit")
	fmt.Println("  eloquent-chat seed <file>  Embed and index FAQ documents from a JSON file")
	fmt.Println("  eloquent-chat version      Show version information")
	fmt.Println("  eloquent-chat help         Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY     Required: OpenAI API key")
	fmt.Println("  HMAC_SECRET        Required: credential signing secret (32+ bytes)")
	fmt.Println("  DATABASE_URL       Optional: overrides the postgres_* settings")
	fmt.Println("  DEBUG              Optional: enable debug logging")
	fmt.Println("  LOG_FORMAT         Optional: set to \"json\" for JSON logs")
}
