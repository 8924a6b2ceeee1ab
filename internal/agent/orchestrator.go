package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relocato/assistant/internal/logging"
	"github.com/relocato/assistant/internal/planner"
	"github.com/relocato/assistant/internal/rag"
	"github.com/relocato/assistant/internal/snapshot"
)

// Memory is the retrieval store surface the orchestrator uses.
// *rag.Store satisfies it. A nil Memory disables retrieval and
// persistence without changing loop behavior.
type Memory interface {
	StoreTurn(ctx context.Context, sessionID, role, content string, meta rag.TurnMetadata) error
	FindRelevantHistory(ctx context.Context, query, excludeSessionID string) ([]rag.RetrievedItem, error)
	SearchKnowledge(ctx context.Context, query, category string) ([]rag.RetrievedItem, error)
	FindLearnedPatterns(ctx context.Context, query string) ([]rag.RetrievedItem, error)
	LearnFromInteraction(ctx context.Context, question, response string, tools []string, rating float64) error
}

// Outcome is the terminal state of one chat invocation.
type Outcome string

const (
	OutcomeDone           Outcome = "done"
	OutcomeDoneWithError  Outcome = "done_with_error"
	OutcomeBudgetExceeded Outcome = "budget_exceeded"
)

// Request is one user turn.
type Request struct {
	SessionID string
	Message   string
	// Image is optional inline base64 data; image turns are single-shot
	// and never enter the tool loop.
	Image    string
	MaxSteps int
}

// Result is the outcome of one chat invocation.
type Result struct {
	Response string
	Actions  []*Record
	Steps    int
	Outcome  Outcome
}

// Options tune the orchestrator.
type Options struct {
	MaxSteps          int
	LearningThreshold time.Duration
}

const (
	defaultMaxSteps          = 10
	defaultLearningThreshold = 10 * time.Second
	learnedPatternRating     = 0.9
)

// Orchestrator drives the bounded multi-step loop between the planner
// and the executor. It is the only component exposed to callers.
type Orchestrator struct {
	planner  planner.Planner
	executor *Executor
	cache    *snapshot.Cache
	registry *Registry
	memory   Memory
	opts     Options
}

// NewOrchestrator wires the loop. memory may be nil.
func NewOrchestrator(p planner.Planner, executor *Executor, cache *snapshot.Cache, memory Memory, opts Options) *Orchestrator {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.LearningThreshold <= 0 {
		opts.LearningThreshold = defaultLearningThreshold
	}
	return &Orchestrator{
		planner:  p,
		executor: executor,
		cache:    cache,
		registry: NewRegistry(),
		memory:   memory,
		opts:     opts,
	}
}

// Chat runs one bounded conversation turn.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Result, error) {
	log := logging.Get(logging.CategoryOrchestrator)
	start := time.Now()

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = o.opts.MaxSteps
	}

	snap, err := o.cache.Get(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load business context: %w", err)
	}

	if req.Image != "" {
		return o.visionTurn(ctx, req, snap, start)
	}

	history, knowledge, patterns := o.retrieve(ctx, req)
	system := systemPrompt(snap, history, knowledge, patterns)
	tools := o.registry.Definitions()

	var records []*Record
	var response string
	outcome := OutcomeDone
	steps := 0

	for step := 1; step <= maxSteps; step++ {
		resp, err := o.planner.GenerateWithTools(ctx, system, stepPrompt(req.Message, records), tools)
		if err != nil {
			if len(records) == 0 {
				return nil, err
			}
			log.Warn("Planner failed after %d actions: %v", len(records), err)
			response = summarizeActions(records) + "\nDie Bearbeitung wurde unterbrochen."
			outcome = OutcomeDoneWithError
			break
		}
		steps = step

		if resp.ToolCall == nil {
			response = resp.Text
			outcome = OutcomeDone
			break
		}

		action, err := o.registry.Parse(resp.ToolCall.Name, resp.ToolCall.Args)
		if err != nil {
			record := &Record{Kind: Kind(resp.ToolCall.Name), Status: StatusPending}
			record.fail(err)
			records = append(records, record)
			response = summarizeActions(records)
			outcome = OutcomeDoneWithError
			break
		}

		log.Info("Step %d/%d: %s", step, maxSteps, action.Kind)
		record := o.executor.Execute(ctx, action)
		records = append(records, record)

		if record.Status == StatusFailed {
			response = summarizeActions(records)
			outcome = OutcomeDoneWithError
			break
		}

		if o.isComplete(action, resp.Text) {
			response = resp.Text
			if strings.TrimSpace(response) == "" {
				response = summarizeActions(records)
			}
			outcome = OutcomeDone
			break
		}

		if step == maxSteps {
			outcome = OutcomeBudgetExceeded
			response = "Die maximale Schrittzahl wurde erreicht. Ausgefuehrte Aktionen:\n" + summarizeActions(records)
		}
	}

	result := &Result{Response: response, Actions: records, Steps: steps, Outcome: outcome}
	o.persist(ctx, req, result, time.Since(start))

	log.Info("Chat finished: outcome=%s steps=%d actions=%d in %v",
		outcome, steps, len(records), time.Since(start))
	return result, nil
}

// isComplete decides termination after a successful action. The
// structured flag wins when the planner set it; otherwise the legacy
// phrase heuristic applies.
func (o *Orchestrator) isComplete(action *Action, text string) bool {
	if action.TaskComplete != nil {
		return *action.TaskComplete
	}
	return containsCompletionPhrase(text)
}

// visionTurn handles image-bearing requests single-shot.
func (o *Orchestrator) visionTurn(ctx context.Context, req Request, snap *snapshot.Context, start time.Time) (*Result, error) {
	system := systemPrompt(snap, nil, nil, nil)
	text, err := o.planner.GenerateVision(ctx, system, req.Message, req.Image)
	if err != nil {
		return nil, err
	}

	result := &Result{Response: text, Steps: 1, Outcome: OutcomeDone}
	o.persist(ctx, req, result, time.Since(start))
	return result, nil
}

// retrieve gathers the three context corpora. Retrieval failures are
// logged and swallowed; they never fail the chat.
func (o *Orchestrator) retrieve(ctx context.Context, req Request) (history, knowledge, patterns []rag.RetrievedItem) {
	if o.memory == nil {
		return nil, nil, nil
	}
	log := logging.Get(logging.CategoryOrchestrator)

	var err error
	if history, err = o.memory.FindRelevantHistory(ctx, req.Message, req.SessionID); err != nil {
		log.Warn("History retrieval failed: %v", err)
		history = nil
	}
	if knowledge, err = o.memory.SearchKnowledge(ctx, req.Message, ""); err != nil {
		log.Warn("Knowledge retrieval failed: %v", err)
		knowledge = nil
	}
	if patterns, err = o.memory.FindLearnedPatterns(ctx, req.Message); err != nil {
		log.Warn("Pattern retrieval failed: %v", err)
		patterns = nil
	}
	return history, knowledge, patterns
}

// persist writes both turns and applies the auto-curation policy. All
// failures are logged and swallowed.
func (o *Orchestrator) persist(ctx context.Context, req Request, result *Result, elapsed time.Duration) {
	if o.memory == nil {
		return
	}
	log := logging.Get(logging.CategoryOrchestrator)

	userMeta := rag.TurnMetadata{ImageURL: req.Image}
	if err := o.memory.StoreTurn(ctx, req.SessionID, "user", req.Message, userMeta); err != nil {
		log.Warn("Failed to store user turn: %v", err)
	}

	tools := make([]string, 0, len(result.Actions))
	allCompleted := true
	for _, record := range result.Actions {
		tools = append(tools, string(record.Kind))
		if record.Status != StatusCompleted {
			allCompleted = false
		}
	}

	assistantMeta := rag.TurnMetadata{
		ToolsUsed:      tools,
		Success:        result.Outcome != OutcomeDoneWithError,
		ResponseTimeMs: int(elapsed.Milliseconds()),
	}
	if err := o.memory.StoreTurn(ctx, req.SessionID, "assistant", result.Response, assistantMeta); err != nil {
		log.Warn("Failed to store assistant turn: %v", err)
	}

	if len(result.Actions) > 1 && allCompleted && elapsed < o.opts.LearningThreshold {
		if err := o.memory.LearnFromInteraction(ctx, req.Message, result.Response, tools, learnedPatternRating); err != nil {
			log.Warn("Failed to store learned pattern: %v", err)
		}
	}
}

// CustomerContext assembles a customer's quotes and invoices and asks
// the planner for a plain-text summary. No tool loop is entered.
func (o *Orchestrator) CustomerContext(ctx context.Context, customerID string) (string, error) {
	snap, err := o.cache.Get(ctx, false)
	if err != nil {
		return "", fmt.Errorf("failed to load business context: %w", err)
	}

	customer := snap.CustomerByID(customerID)
	if customer == nil {
		return "", fmt.Errorf("customer %s not found", customerID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Kunde: %s (Phase %s)\n", customer.Name, customer.CurrentPhase)
	if customer.MovingDate != "" {
		fmt.Fprintf(&sb, "Umzugstermin: %s\n", customer.MovingDate)
	}
	if customer.FromAddress != "" || customer.ToAddress != "" {
		fmt.Fprintf(&sb, "Umzug: %s nach %s\n", customer.FromAddress, customer.ToAddress)
	}
	for _, quote := range snap.Quotes {
		if quote.CustomerID == customerID {
			fmt.Fprintf(&sb, "Angebot %s: %.2f EUR (%s)\n", quote.ID, quote.Price, quote.Status)
		}
	}
	for _, invoice := range snap.Invoices {
		if invoice.CustomerID == customerID {
			fmt.Fprintf(&sb, "Rechnung %s: %.2f EUR (%s)\n", invoice.ID, invoice.TotalPrice, invoice.Status)
		}
	}

	system := "Du bist der KI-Assistent der Umzugsfirma RELOCATO. Fasse den Kundenstatus in wenigen Saetzen zusammen."
	return o.planner.GenerateText(ctx, system, sb.String())
}
