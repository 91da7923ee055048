package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	oasis "github.com/sandlake/oasis"
)

const maxStreamRetries = 3

// handleChatStream handles a chat intent with streaming response.
func (a *App) handleChatStream(ctx context.Context, chatID, message string, conv oasis.Conversation) string {
	return a.handleChatStreamWithContext(ctx, chatID, message, conv, "", nil)
}

// handleChatStreamWithContext handles chat with optional extra context (e.g. file content)
// and optional image attachments (e.g. a downloaded photo).
func (a *App) handleChatStreamWithContext(ctx context.Context, chatID, message string, conv oasis.Conversation, extraContext string, attachments []oasis.Attachment) string {
	memoryContext := ""
	if a.memory != nil && a.embedding != nil {
		embs, err := a.embedding.Embed(ctx, []string{message})
		if err == nil && len(embs) > 0 {
			mc, err := a.memory.BuildContext(ctx, embs[0])
			if err == nil {
				memoryContext = mc
			}
		}
	}

	fullContext := memoryContext
	if extraContext != "" {
		if fullContext != "" {
			fullContext += "\n" + extraContext
		} else {
			fullContext = extraContext
		}
	}

	messages := a.buildSystemPrompt(ctx, fullContext, conv)
	userMsg := oasis.UserMessage(message)
	userMsg.Attachments = attachments
	messages = append(messages, userMsg)

	req := oasis.ChatRequest{Messages: messages}
	if err := a.guards.RunPreLLM(ctx, &req); err != nil {
		return a.haltResponse(ctx, chatID, err)
	}

	msgID, err := a.frontend.Send(ctx, chatID, "Thinking...")
	if err != nil {
		log.Printf(" [chat] failed to send placeholder: %v", err)
		return ""
	}

	var lastErr error

	for attempt := 0; attempt <= maxStreamRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			log.Printf(" [chat] retry %d/%d in %s", attempt, maxStreamRetries, delay)
			_ = a.frontend.Edit(ctx, chatID, msgID,
				fmt.Sprintf("Retrying... (attempt %d/%d)", attempt+1, maxStreamRetries+1))
			time.Sleep(delay)
		}

		ch := make(chan oasis.StreamEvent, 100)

		type streamResult struct {
			resp oasis.ChatResponse
			err  error
		}
		resultCh := make(chan streamResult, 1)
		go func() {
			resp, err := a.chatLLM.ChatStream(ctx, req, ch)
			resultCh <- streamResult{resp, err}
		}()

		var accumulated strings.Builder
		lastEdit := time.Now()
		editInterval := time.Second

		for ev := range ch {
			if ev.Type != oasis.EventTextDelta {
				continue
			}
			accumulated.WriteString(ev.Content)
			if time.Since(lastEdit) >= editInterval {
				_ = a.frontend.Edit(ctx, chatID, msgID, accumulated.String())
				lastEdit = time.Now()
			}
		}

		text := accumulated.String()

		result := <-resultCh
		if result.err != nil {
			log.Printf(" [chat] stream error: %v", result.err)
			if text == "" && isTransientError(result.err) && attempt < maxStreamRetries {
				lastErr = result.err
				continue
			}
			if text == "" {
				_ = a.frontend.Edit(ctx, chatID, msgID,
					"Sorry, something went wrong. Please try again.")
				return ""
			}
		}

		if text == "" {
			_ = a.frontend.Edit(ctx, chatID, msgID,
				"Sorry, I got an empty response. Please try again.")
			return ""
		}

		resp := oasis.ChatResponse{Content: text}
		if err := a.guards.RunPostLLM(ctx, &resp); err != nil {
			if halt, ok := err.(*oasis.ErrHalt); ok {
				_ = a.frontend.Edit(ctx, chatID, msgID, halt.Response)
				return halt.Response
			}
			_ = a.frontend.Edit(ctx, chatID, msgID, "Sorry, something went wrong. Please try again.")
			return ""
		}

		_ = a.frontend.EditFormatted(ctx, chatID, msgID, resp.Content)
		log.Printf(" [send] %d chars (streamed)", len(resp.Content))
		return resp.Content
	}

	_ = a.frontend.Edit(ctx, chatID, msgID,
		"Sorry, the service is temporarily unavailable. Please try again later.")
	log.Printf(" [chat] all retries exhausted: %v", lastErr)
	return ""
}

// haltResponse sends a guard's canned response (or a generic failure message
// for non-halt errors) and returns the text that was sent.
func (a *App) haltResponse(ctx context.Context, chatID string, err error) string {
	msg := "Sorry, I can't process that request."
	if halt, ok := err.(*oasis.ErrHalt); ok {
		msg = halt.Response
	}
	_, _ = a.frontend.Send(ctx, chatID, msg)
	return msg
}

// buildSystemPrompt constructs the system message with context and history.
func (a *App) buildSystemPrompt(ctx context.Context, memContext string, conv oasis.Conversation) []oasis.ChatMessage {
	tz := a.config.Brain.TimezoneOffset
	now := time.Now().UTC().Add(time.Duration(tz) * time.Hour)
	timeStr := now.Format("2006-01-02 15:04")
	tzStr := fmt.Sprintf("UTC+%d", tz)

	system := fmt.Sprintf("You are Oasis, a personal AI assistant. You are helpful, concise, and friendly.\nCurrent date and time: %s (%s)\n", timeStr, tzStr)

	if memContext != "" {
		system += "\n" + memContext + "\n"
	}

	if taskSummary := a.taskSummary(ctx); taskSummary != "" {
		system += "\n" + taskSummary + "\n"
	}

	history, err := a.store.GetMessages(ctx, conv.ID, a.config.Brain.ContextWindow)
	if err == nil && len(history) > 0 {
		system += "\n## Recent conversation (for context only — respond to the user's NEW message, not these)\n"
		for _, msg := range history {
			roleLabel := "User"
			if msg.Role == "assistant" {
				roleLabel = "Oasis"
			}
			system += fmt.Sprintf("%s: %s\n", roleLabel, msg.Content)
		}
	}

	return []oasis.ChatMessage{oasis.SystemMessage(system)}
}

// isTransientError checks if an error is retryable (429, 5xx).
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "temporarily")
}
