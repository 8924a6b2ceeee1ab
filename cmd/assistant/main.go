package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/relocato/assistant/internal/agent"
	"github.com/relocato/assistant/internal/codeops"
	"github.com/relocato/assistant/internal/config"
	"github.com/relocato/assistant/internal/crm"
	"github.com/relocato/assistant/internal/embedding"
	"github.com/relocato/assistant/internal/logging"
	"github.com/relocato/assistant/internal/planner"
	"github.com/relocato/assistant/internal/rag"
	"github.com/relocato/assistant/internal/snapshot"
)

var (
	configPath string
	imagePath  string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "RELOCATO AI assistant for customers, quotes and project code",
	Long: `The RELOCATO assistant drives a bounded multi-step tool loop:
an LLM planner proposes one action per step (CRM writes, file edits,
shell commands), each action is validated before it touches anything,
and past conversations feed back in through a retrieval store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		return logging.Initialize(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the assistant (REPL without arguments)",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sessionID := app.store.StartSession(ctx, os.Getenv("USER"))
		defer func() {
			if err := app.store.EndSession(context.Background(), sessionID); err != nil {
				logging.Get(logging.CategoryBoot).Warn("Failed to end session: %v", err)
			}
		}()

		if len(args) > 0 {
			return runTurn(ctx, app, sessionID, strings.Join(args, " "))
		}

		if dir := cfg.Storage.KnowledgeDir; dir != "" {
			if _, err := os.Stat(dir); err == nil {
				go func() {
					if err := app.store.WatchKnowledgeDir(ctx, dir); err != nil && ctx.Err() == nil {
						logging.Get(logging.CategoryBoot).Warn("Knowledge watcher stopped: %v", err)
					}
				}()
			}
		}
		return runREPL(ctx, app, sessionID)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the current business snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		snap, err := app.cache.Get(cmd.Context(), true)
		if err != nil {
			return err
		}

		fmt.Printf("Kunden:     %d\n", snap.Stats.TotalCustomers)
		fmt.Printf("Angebote:   %d\n", snap.Stats.TotalQuotes)
		fmt.Printf("Rechnungen: %d\n", snap.Stats.TotalInvoices)
		fmt.Printf("Umsatz:     %.2f EUR\n", snap.Stats.TotalRevenue)
		for _, phase := range crm.Phases {
			if n := snap.Stats.CustomersByPhase[phase]; n > 0 {
				fmt.Printf("  %-22s %d\n", phase, n)
			}
		}
		return nil
	},
}

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the knowledge base",
}

var knowledgeSeedCmd = &cobra.Command{
	Use:   "seed [dir]",
	Short: "Load YAML knowledge documents into the retrieval store",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		dir := cfg.Storage.KnowledgeDir
		if len(args) > 0 {
			dir = args[0]
		}
		n, err := app.store.SeedKnowledgeDir(cmd.Context(), dir)
		if err != nil {
			return err
		}
		fmt.Printf("%d Dokumente geladen aus %s\n", n, dir)
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions",
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "Close an open chat session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return app.store.EndSession(cmd.Context(), args[0])
	},
}

// app bundles the wired components for one CLI invocation.
type app struct {
	crmStore *crm.Store
	store    *rag.Store
	cache    *snapshot.Cache
	orch     *agent.Orchestrator
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Failed to close retrieval store: %v", err)
	}
	if err := a.crmStore.Close(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Failed to close CRM store: %v", err)
	}
}

// buildApp constructs every component once and injects it by interface.
func buildApp() (*app, error) {
	log := logging.Get(logging.CategoryBoot)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	crmStore, err := crm.NewStore(cfg.Storage.CRMDatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CRM store: %w", err)
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
	})
	if err != nil {
		crmStore.Close()
		return nil, err
	}

	ragStore, err := rag.Open(cfg.Storage.RAGDatabasePath, engine, rag.Config{
		HistoryThreshold:   cfg.Retrieval.HistoryThreshold,
		HistoryLimit:       cfg.Retrieval.HistoryLimit,
		KnowledgeThreshold: cfg.Retrieval.KnowledgeThreshold,
		KnowledgeLimit:     cfg.Retrieval.KnowledgeLimit,
		PatternThreshold:   cfg.Retrieval.PatternThreshold,
		PatternLimit:       cfg.Retrieval.PatternLimit,
	})
	if err != nil {
		crmStore.Close()
		return nil, err
	}

	plannerClient, err := planner.NewAnthropicPlanner(
		cfg.Planner.APIKey, cfg.Planner.Model, cfg.Planner.MaxTokens, cfg.Planner.Temperature)
	if err != nil {
		ragStore.Close()
		crmStore.Close()
		return nil, err
	}

	codeClient := codeops.NewClient(cfg.CodeBackend.BaseURL, cfg.CodeBackendTimeout())
	cache := snapshot.NewCache(crmStore, cfg.CacheTTL())
	executor := agent.NewExecutor(crmStore, codeClient, cache)
	orch := agent.NewOrchestrator(plannerClient, executor, cache, ragStore, agent.Options{
		MaxSteps:          cfg.Orchestrator.MaxSteps,
		LearningThreshold: cfg.LearningThreshold(),
	})

	log.Info("%s %s ready (embedding=%s)", cfg.Name, cfg.Version, engine.Name())
	return &app{crmStore: crmStore, store: ragStore, cache: cache, orch: orch}, nil
}

func runTurn(ctx context.Context, a *app, sessionID, message string) error {
	req := agent.Request{SessionID: sessionID, Message: message}

	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		req.Image = base64.StdEncoding.EncodeToString(data)
	}

	result, err := a.orch.Chat(ctx, req)
	if err != nil {
		return err
	}

	fmt.Println(result.Response)
	if result.Outcome != agent.OutcomeDone {
		fmt.Printf("[%s nach %d Schritten]\n", result.Outcome, result.Steps)
	}
	return nil
}

func runREPL(ctx context.Context, a *app, sessionID string) error {
	fmt.Println("RELOCATO Assistent. Leere Eingabe beendet die Sitzung.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		if err := runTurn(ctx, a, sessionID, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Fehler: %v\n", err)
		}
	}
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "assistant.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	chatCmd.Flags().StringVar(&imagePath, "image", "", "attach an image (single-shot vision turn)")

	knowledgeCmd.AddCommand(knowledgeSeedCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	rootCmd.AddCommand(chatCmd, statsCmd, knowledgeCmd, sessionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
