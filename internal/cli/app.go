package cli

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/flowbothq/flowbot/connector"
	"github.com/flowbothq/flowbot/engine"
	"github.com/flowbothq/flowbot/internal/config"
	"github.com/flowbothq/flowbot/observe"
	otelsink "github.com/flowbothq/flowbot/observe/otel"
	"github.com/flowbothq/flowbot/providers/gmail"
	"github.com/flowbothq/flowbot/providers/notion"
	"github.com/flowbothq/flowbot/providers/openrouter"
	"github.com/flowbothq/flowbot/providers/telegram"
	"github.com/flowbothq/flowbot/scheduler"
	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/store/factory"
	"github.com/flowbothq/flowbot/trigger"
)

// app bundles everything a command needs, wired once from environment
// configuration. No package-level singletons.
type app struct {
	store     store.Store
	pipeline  *engine.Pipeline
	scheduler *scheduler.Scheduler
	sink      observe.Sink
	spans     *observe.AsyncSink
}

func buildApp(ctx context.Context) (*app, error) {
	st, err := factory.FromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	apiKey := config.Getenv("OPENROUTER_API_KEY", os.Getenv("LLM_API_KEY"))
	var llmOpts []openrouter.Option
	if model := config.Getenv("OPENROUTER_MODEL", ""); model != "" {
		llmOpts = append(llmOpts, openrouter.WithModel(model))
	}
	llmClient, err := openrouter.New(apiKey, llmOpts...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to build llm client: %w", err)
	}

	gmailClient := gmail.New()
	telegramClient := telegram.New()

	registry, err := connector.NewRegistry(
		connector.NewLLM(llmClient),
		connector.NewGmail(gmailClient),
		connector.NewNotion(notion.New()),
		connector.NewTelegram(telegramClient),
		connector.NewHTTP(),
	)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to build connector registry: %w", err)
	}

	sinks := []observe.Sink{observe.LogSink{}}
	var spans *observe.AsyncSink
	if config.ParseBoolEnv("FLOWBOT_TRACING", false) {
		// Span export happens off the execution hot path.
		spans = observe.NewAsyncSink(otelsink.NewSink(otel.GetTracerProvider()), 0)
		sinks = append(sinks, spans)
	}
	sink := observe.NewMultiSink(sinks...)

	executor := engine.NewExecutor(registry,
		engine.WithStepTimeout(config.ParseDurationEnv("FLOWBOT_STEP_TIMEOUT", 0)),
		engine.WithMaxDuration(config.ParseDurationEnv("FLOWBOT_EXEC_TIMEOUT", 0)),
		engine.WithSink(sink),
	)
	pipeline := engine.NewPipeline(st, executor, engine.WithPipelineSink(sink))

	evaluator := trigger.NewEvaluator(st,
		trigger.WithInboxChecker(gmailClient),
		trigger.WithUpdatesChecker(telegramClient),
	)
	sched := scheduler.New(st, evaluator, pipeline,
		scheduler.WithWorkers(config.ParseIntEnv("FLOWBOT_WORKERS", 0)),
		scheduler.WithSink(sink),
	)

	return &app{
		store:     st,
		pipeline:  pipeline,
		scheduler: sched,
		sink:      sink,
		spans:     spans,
	}, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	a.spans.Close()
	_ = a.store.Close()
}
