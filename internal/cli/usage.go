package cli

import "fmt"

func printUsage() {
	fmt.Println("flowbot - workflow automation engine")
	fmt.Println("Usage:")
	fmt.Println("  flowbot serve [--addr=127.0.0.1:8080] [--tick-interval=60s]")
	fmt.Println("  flowbot tick")
	fmt.Println("  flowbot execute <agent-id> [--data='{\"content\":\"...\"}']")
	fmt.Println("  flowbot retry <execution-id>")
	fmt.Println("  flowbot agents list [--user=<user-id>]")
	fmt.Println("  flowbot agents delete <agent-id>")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  FLOWBOT_STORE_BACKEND        sqlite (default), redis, or memory")
	fmt.Println("  FLOWBOT_SQLITE_PATH          sqlite database path (default ./.flowbot/flowbot.db)")
	fmt.Println("  FLOWBOT_REDIS_ADDR           redis address (default 127.0.0.1:6379)")
	fmt.Println("  FLOWBOT_WORKERS              scheduler worker pool size")
	fmt.Println("  FLOWBOT_STEP_TIMEOUT         per-step timeout (default 60s)")
	fmt.Println("  FLOWBOT_EXEC_TIMEOUT         total execution ceiling (default 5m)")
	fmt.Println("  FLOWBOT_TRACING              emit OpenTelemetry spans (default off)")
	fmt.Println("  OPENROUTER_API_KEY           completion service API key")
	fmt.Println("  OPENROUTER_MODEL             completion model override")
}
