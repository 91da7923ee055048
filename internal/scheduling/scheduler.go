package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	oasis "github.com/sandlake/oasis"
)

// Scheduler checks for and executes due scheduled actions.
type Scheduler struct {
	store     oasis.VectorStore
	tools     *oasis.ToolRegistry
	frontend  oasis.Frontend
	intentLLM oasis.Provider
	tzOffset  int
	tracer    oasis.Tracer
}

// New creates a Scheduler.
func New(store oasis.VectorStore, tools *oasis.ToolRegistry, frontend oasis.Frontend, intentLLM oasis.Provider, tzOffset int) *Scheduler {
	return &Scheduler{
		store:     store,
		tools:     tools,
		frontend:  frontend,
		intentLLM: intentLLM,
		tzOffset:  tzOffset,
	}
}

// WithTracer attaches a Tracer used to span each scheduler tick. Optional;
// a nil tracer (the default) disables span creation.
func (s *Scheduler) WithTracer(t oasis.Tracer) *Scheduler {
	s.tracer = t
	return s
}

// Run starts the scheduling loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Println(" [sched] scheduler started")
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println(" [sched] scheduler stopped")
			return
		case <-ticker.C:
			if err := s.checkAndRun(ctx); err != nil {
				log.Printf(" [sched] error: %v", err)
			}
		}
	}
}

func (s *Scheduler) checkAndRun(ctx context.Context) error {
	if s.tracer != nil {
		var span oasis.Span
		ctx, span = s.tracer.Start(ctx, "scheduler.tick")
		defer span.End()
	}

	now := oasis.NowUnix()
	dueActions, err := s.store.GetDueScheduledActions(ctx, now)
	if err != nil {
		return err
	}

	if len(dueActions) == 0 {
		return nil
	}

	// Find owner chat ID
	ownerStr, err := s.store.GetConfig(ctx, "owner_user_id")
	if err != nil || ownerStr == "" {
		return nil
	}

	for _, action := range dueActions {
		log.Printf(" [sched] executing: %s", action.Description)

		actionCtx := ctx
		var actionSpan oasis.Span
		if s.tracer != nil {
			actionCtx, actionSpan = s.tracer.Start(ctx, "scheduler.action",
				oasis.StringAttr("action_id", action.ID),
				oasis.StringAttr("schedule", action.Schedule),
			)
		}

		// Parse tool calls
		var toolCalls []oasis.ScheduledToolCall
		if err := json.Unmarshal([]byte(action.ToolCalls), &toolCalls); err != nil {
			// Try string-encoded fallback
			var strs []string
			if err2 := json.Unmarshal([]byte(action.ToolCalls), &strs); err2 == nil {
				for _, str := range strs {
					var tc oasis.ScheduledToolCall
					if err3 := json.Unmarshal([]byte(str), &tc); err3 == nil {
						toolCalls = append(toolCalls, tc)
					}
				}
			}
			if len(toolCalls) == 0 {
				log.Printf(" [sched] invalid tool_calls JSON: %v", err)
				if actionSpan != nil {
					actionSpan.Error(err)
					actionSpan.End()
				}
				continue
			}
		}

		// Execute each tool
		var results []string
		for _, tc := range toolCalls {
			log.Printf(" [sched] tool: %s(%s)", tc.Tool, string(tc.Params))
			result, execErr := s.tools.Execute(actionCtx, tc.Tool, tc.Params)
			output := result.Content
			if execErr != nil {
				output = "error: " + execErr.Error()
			} else if result.Error != "" {
				output = "error: " + result.Error
			}
			results = append(results, fmt.Sprintf("## %s\n%s", tc.Tool, output))
		}

		combined := strings.Join(results, "\n\n")

		// Synthesize or format results
		var message string
		if action.SynthesisPrompt != "" {
			message = s.synthesize(actionCtx, combined, action.SynthesisPrompt, action.Description)
		} else {
			message = fmt.Sprintf("**%s**\n\n%s", action.Description, combined)
		}

		// Send to owner
		if _, err := s.frontend.Send(actionCtx, ownerStr, message); err != nil {
			log.Printf(" [sched] send failed: %v", err)
		}

		// Update last_run and next_run
		action.LastRun = now
		isOnce := strings.HasSuffix(action.Schedule, " once")
		if isOnce {
			// Disable one-shot schedule; next_run is left as-is since the
			// action won't fire again.
			action.Enabled = false
			_ = s.store.UpdateScheduledAction(actionCtx, action)
			log.Printf(" [sched] done (once): %s, disabled", action.Description)
		} else {
			nextRun, ok := oasis.ComputeNextRun(action.Schedule, now, s.tzOffset)
			if !ok {
				nextRun = now + 86400 // fallback: 24h
			}
			action.NextRun = nextRun
			_ = s.store.UpdateScheduledAction(actionCtx, action)
			log.Printf(" [sched] done: %s, next: %s",
				action.Description, oasis.FormatLocalTime(nextRun, s.tzOffset))
		}

		if actionSpan != nil {
			actionSpan.End()
		}
	}

	return nil
}

func (s *Scheduler) synthesize(ctx context.Context, toolResults, synthesisPrompt, description string) string {
	tz := s.tzOffset
	now := time.Now().UTC().Add(time.Duration(tz) * time.Hour)
	timeStr := now.Format("2006-01-02 15:04")
	tzStr := fmt.Sprintf("UTC+%d", tz)

	system := fmt.Sprintf(
		"You are Oasis, a personal AI assistant. Current time: %s (%s).\n\n"+
			"You are generating a scheduled report: %q.\n"+
			"User's formatting instruction: %s\n\n"+
			"Based on the tool results below, create a concise, well-formatted message.\n\n"+
			"Tool results:\n%s",
		timeStr, tzStr, description, synthesisPrompt, toolResults)

	req := oasis.ChatRequest{
		Messages: []oasis.ChatMessage{
			oasis.SystemMessage(system),
			oasis.UserMessage("Generate the report."),
		},
	}

	resp, err := s.intentLLM.Chat(ctx, req)
	if err != nil {
		log.Printf(" [sched] synthesis failed: %v", err)
		return fmt.Sprintf("**%s**\n\n%s", description, toolResults)
	}
	return resp.Content
}
