package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/flowbothq/flowbot/types"
)

func runTick(ctx context.Context) {
	a, err := buildApp(ctx)
	if err != nil {
		log.Fatalf("[cli] %v", err)
	}
	defer a.Close()

	summary, err := a.scheduler.Tick(ctx, time.Now().UTC())
	if err != nil {
		log.Fatalf("[cli] tick failed: %v", err)
	}
	for _, r := range summary.Results {
		switch {
		case r.Err != nil:
			fmt.Printf("  %s: error: %v\n", r.AgentID, r.Err)
		case r.Ran:
			fmt.Printf("  %s: ran execution %s\n", r.AgentID, r.ExecutionID)
		default:
			fmt.Printf("  %s: skipped (%s)\n", r.AgentID, r.Skipped)
		}
	}
	fmt.Printf("checked=%d ran=%d failed=%d skipped=%d\n",
		summary.Checked, summary.Ran, summary.Failed, summary.Skipped)
}

func runExecute(ctx context.Context, args []string) {
	var agentID string
	var triggerData map[string]any
	for _, arg := range args {
		if strings.HasPrefix(arg, "--data=") {
			raw := strings.TrimPrefix(arg, "--data=")
			if err := json.Unmarshal([]byte(raw), &triggerData); err != nil {
				log.Fatalf("[cli] invalid --data JSON: %v", err)
			}
			continue
		}
		if agentID == "" {
			agentID = strings.TrimSpace(arg)
		}
	}
	if agentID == "" {
		log.Fatal("[cli] usage: flowbot execute <agent-id> [--data='{...}']")
	}

	a, err := buildApp(ctx)
	if err != nil {
		log.Fatalf("[cli] %v", err)
	}
	defer a.Close()

	exec, err := a.pipeline.ExecuteByID(ctx, agentID, triggerData)
	if err != nil {
		log.Fatalf("[cli] execute failed: %v", err)
	}
	printExecution(exec)
}

func runRetry(ctx context.Context, args []string) {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		log.Fatal("[cli] usage: flowbot retry <execution-id>")
	}

	a, err := buildApp(ctx)
	if err != nil {
		log.Fatalf("[cli] %v", err)
	}
	defer a.Close()

	exec, err := a.pipeline.Retry(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		log.Fatalf("[cli] retry failed: %v", err)
	}
	printExecution(exec)
}

func runAgents(ctx context.Context, args []string) {
	if len(args) < 1 {
		log.Fatal("[cli] usage: flowbot agents list|delete")
	}

	a, err := buildApp(ctx)
	if err != nil {
		log.Fatalf("[cli] %v", err)
	}
	defer a.Close()

	switch strings.TrimSpace(args[0]) {
	case "list":
		userID := ""
		for _, arg := range args[1:] {
			if strings.HasPrefix(arg, "--user=") {
				userID = strings.TrimSpace(strings.TrimPrefix(arg, "--user="))
			}
		}
		agents, err := a.store.ListAgents(ctx, userID)
		if err != nil {
			log.Fatalf("[cli] list failed: %v", err)
		}
		if len(agents) == 0 {
			fmt.Println("no agents")
			return
		}
		for _, agent := range agents {
			next := "-"
			if agent.NextRunAt != nil {
				next = agent.NextRunAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("  %s  %-24s  %-10s  %-8s  next=%s  v%d\n",
				agent.ID, agent.Name, agent.TriggerType, agent.Status, next, agent.Version)
		}
	case "delete":
		if len(args) < 2 {
			log.Fatal("[cli] usage: flowbot agents delete <agent-id>")
		}
		id := strings.TrimSpace(args[1])
		if err := a.store.DeleteAgent(ctx, id); err != nil {
			log.Fatalf("[cli] delete failed: %v", err)
		}
		fmt.Printf("deleted %s\n", id)
	default:
		log.Fatalf("[cli] unknown agents subcommand %q", args[0])
	}
}

func printExecution(exec types.Execution) {
	fmt.Printf("execution %s: %s (%dms)\n", exec.ID, exec.Status, exec.DurationMS)
	for _, line := range exec.Log {
		fmt.Printf("  %s\n", line)
	}
	if exec.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", exec.ErrorMessage)
	}
}
