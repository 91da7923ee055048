// Command oasis runs the Oasis personal assistant: a Telegram frontend, a
// streaming chat path, a tool-using sub-agent for actions, and a background
// scheduler for recurring actions and skills.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	oasis "github.com/sandlake/oasis"
	"github.com/sandlake/oasis/internal/assistant"
	"github.com/sandlake/oasis/internal/config"
	"github.com/sandlake/oasis/internal/scheduling"

	memsqlite "github.com/sandlake/oasis/memory/sqlite"
	"github.com/sandlake/oasis/observer"
	"github.com/sandlake/oasis/provider/resolve"
	"github.com/sandlake/oasis/store/postgres"
	"github.com/sandlake/oasis/store/sqlite"

	"github.com/sandlake/oasis/frontend/telegram"

	"github.com/sandlake/oasis/tools/file"
	"github.com/sandlake/oasis/tools/http"
	"github.com/sandlake/oasis/tools/knowledge"
	"github.com/sandlake/oasis/tools/remember"
	"github.com/sandlake/oasis/tools/schedule"
	"github.com/sandlake/oasis/tools/search"
	"github.com/sandlake/oasis/tools/shell"
	"github.com/sandlake/oasis/tools/skill"
	"github.com/sandlake/oasis/tools/task"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmsgprefix)
	log.SetPrefix("oasis: ")

	configPath := flag.String("config", "", "path to oasis.toml (default: ./oasis.toml)")
	flag.Parse()

	cfg := config.Load(*configPath)

	if cfg.Telegram.Token == "" {
		log.Fatal("telegram token required: set [telegram].token in oasis.toml or OASIS_TELEGRAM_TOKEN")
	}

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}
	defer closeStore()

	mem := memsqlite.New(memDBPath(cfg))

	chatLLM, err := resolve.Provider(resolve.Config{
		Provider: cfg.Chat.Provider, APIKey: cfg.Chat.APIKey, Model: cfg.Chat.Model, BaseURL: cfg.Chat.BaseURL,
	})
	if err != nil {
		log.Fatalf("chat provider: %v", err)
	}
	intentLLM, err := resolve.Provider(resolve.Config{
		Provider: cfg.Intent.Provider, APIKey: cfg.Intent.APIKey, Model: cfg.Intent.Model, BaseURL: cfg.Intent.BaseURL,
	})
	if err != nil {
		log.Fatalf("intent provider: %v", err)
	}
	actionLLM, err := resolve.Provider(resolve.Config{
		Provider: cfg.Action.Provider, APIKey: cfg.Action.APIKey, Model: cfg.Action.Model, BaseURL: cfg.Action.BaseURL,
	})
	if err != nil {
		log.Fatalf("action provider: %v", err)
	}
	emb, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider: cfg.Embedding.Provider, APIKey: cfg.Embedding.APIKey, Model: cfg.Embedding.Model, Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		log.Fatalf("embedding provider: %v", err)
	}

	chatLLM = oasis.WithRetry(chatLLM)
	intentLLM = oasis.WithRetry(intentLLM)
	actionLLM = oasis.WithRetry(actionLLM)

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(ctx, convertPricing(cfg.Observer.Pricing))
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer shutdown(ctx)

		chatLLM = observer.WrapProvider(chatLLM, cfg.Chat.Model, inst)
		intentLLM = observer.WrapProvider(intentLLM, cfg.Intent.Model, inst)
		actionLLM = observer.WrapProvider(actionLLM, cfg.Action.Model, inst)
		emb = observer.WrapEmbedding(emb, cfg.Embedding.Model, inst)
	}

	var tracer oasis.Tracer
	if cfg.Observer.Enabled {
		tracer = observer.NewTracer()
	}

	bot := telegram.New(cfg.Telegram.Token)

	app := assistant.New(&cfg, assistant.Deps{
		Frontend:  bot,
		ChatLLM:   chatLLM,
		IntentLLM: intentLLM,
		ActionLLM: actionLLM,
		Embedding: emb,
		Store:     store,
		Memory:    mem,
	})
	app.SetTracer(tracer)

	addTool := func(t oasis.Tool) {
		if inst != nil {
			t = observer.WrapTool(t, inst)
		}
		app.AddTool(t)
	}

	rememberTool := remember.New(store, emb)
	app.SetIngestFile(rememberTool.IngestFile)
	app.SetIngestURL(rememberTool.IngestURL)

	addTool(rememberTool)
	addTool(knowledge.New(store, emb))
	addTool(schedule.New(store, cfg.Brain.TimezoneOffset))
	addTool(skill.New(store, emb))
	addTool(task.New(store))
	addTool(file.New(cfg.Brain.WorkspacePath))
	addTool(shell.New(cfg.Brain.WorkspacePath, 30))
	addTool(http.New())
	if cfg.Search.BraveAPIKey != "" {
		addTool(search.New(emb, cfg.Search.BraveAPIKey))
	}

	sched := scheduling.New(store, app.Tools(), app.Frontend(), intentLLM, cfg.Brain.TimezoneOffset).WithTracer(tracer)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.Run(runCtx)

	if err := app.Run(runCtx); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}

// openStore picks the PostgreSQL backend when a DSN is configured, otherwise
// falls back to sqlite. Returns a cleanup func that releases the underlying
// connection (a no-op for sqlite, whose *sql.DB is owned by the store itself).
func openStore(ctx context.Context, cfg config.Config) (oasis.VectorStore, func(), error) {
	if cfg.Database.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, func() {}, err
		}
		store := postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		return store, pool.Close, nil
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "oasis.db"
	}
	return sqlite.New(dbPath), func() {}, nil
}

// memDBPath derives the fact-memory database path from the main store's
// sqlite path (Postgres deployments still keep facts in a local sqlite file,
// because main always opens memory/sqlite for fact storage).
func memDBPath(cfg config.Config) string {
	if cfg.Database.Path != "" {
		return cfg.Database.Path + ".memory"
	}
	return "oasis.db.memory"
}

func convertPricing(in map[string]config.ObserverPricing) map[string]observer.ModelPricing {
	out := make(map[string]observer.ModelPricing, len(in))
	for model, p := range in {
		out[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
	}
	return out
}
