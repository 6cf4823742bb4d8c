// Package cli dispatches the flowbot command line.
package cli

import (
	"context"
	"log"
	"strings"

	"github.com/joho/godotenv"
)

func Run(ctx context.Context, args []string) {
	if err := godotenv.Load(); err == nil {
		log.Printf("[cli] loaded environment from .env")
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	switch strings.TrimSpace(args[0]) {
	case "serve":
		runServe(ctx, args[1:])
	case "tick":
		runTick(ctx)
	case "execute":
		runExecute(ctx, args[1:])
	case "retry":
		runRetry(ctx, args[1:])
	case "agents":
		runAgents(ctx, args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		log.Printf("[cli] unknown command %q", args[0])
		printUsage()
	}
}
