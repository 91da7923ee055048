package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	oasis "github.com/sandlake/oasis"
)

const maxToolIterations = 10

// askUserDefinition is injected alongside registry tools so the action LLM
// can request clarification mid-loop.
var askUserDefinition = oasis.ToolDefinition{
	Name:        "ask_user",
	Description: "Ask the user a clarifying question when you need more information to proceed.",
	Parameters:  json.RawMessage(`{"type":"object","properties":{"question":{"type":"string","description":"The question to ask the user"}},"required":["question"]}`),
}

// spawnActionAgent creates and launches an action agent, or enqueues if slots are full.
func (a *App) spawnActionAgent(ctx context.Context, chatID, text, conversationID, originalMsgID string) {
	if !a.agents.SlotsAvailable() {
		log.Println(" [agent] slots full, enqueuing")
		a.agents.Enqueue(QueuedAction{
			ChatID:         chatID,
			Text:           text,
			ConversationID: conversationID,
			OriginalMsgID:  originalMsgID,
		})
		_, _ = a.frontend.Send(ctx, chatID, "Queued — will run when a slot opens.")
		return
	}

	a.launchAgent(ctx, chatID, text, conversationID, originalMsgID)
}

// launchAgent generates an ack + label and starts the agent goroutine.
func (a *App) launchAgent(ctx context.Context, chatID, text, conversationID, originalMsgID string) {
	ackText, description := a.generateAckAndLabel(ctx, text)

	ackMsgID, err := a.frontend.SendReply(ctx, chatID, originalMsgID, ackText)
	if err != nil {
		log.Printf(" [agent] failed to send ack: %v", err)
		return
	}

	agentID := oasis.NewID()
	agent := &ActionAgent{
		ID:            agentID,
		ChatID:        chatID,
		Description:   description,
		Status:        AgentRunning,
		StartedAt:     time.Now(),
		InputCh:       make(chan string, 1),
		OriginalMsgID: originalMsgID,
		AckMsgID:      ackMsgID,
	}
	a.agents.Register(agent)

	go func() {
		log.Printf(" [agent:%s] started", agentID)

		response, err := a.runActionLoop(ctx, chatID, text, conversationID, agentID, ackMsgID, originalMsgID, agent.InputCh)

		if err != nil {
			log.Printf(" [agent:%s] error: %v", agentID, err)
			_, _ = a.frontend.SendReply(ctx, chatID, originalMsgID, "Sorry, something went wrong.")
		} else {
			conv, convErr := a.getOrCreateConversation(ctx, chatID)
			if convErr == nil {
				a.spawnStore(ctx, conv, text, response)
			}
		}

		a.agents.Remove(agentID)
		log.Printf(" [agent:%s] done, removed", agentID)

		if queued, ok := a.agents.TryDequeue(); ok {
			log.Println(" [agent] dequeuing action from queue")
			a.launchAgent(ctx, queued.ChatID, queued.Text, queued.ConversationID, queued.OriginalMsgID)
		}
	}()
}

// ackLabelSchema is the JSON Schema for ack + label responses.
var ackLabelSchema = &oasis.ResponseSchema{
	Name:   "ack_and_label",
	Schema: json.RawMessage(`{"type":"object","properties":{"ack":{"type":"string"},"label":{"type":"string"}},"required":["ack","label"]}`),
}

// generateAckAndLabel creates a brief ack + short label from the user's request.
func (a *App) generateAckAndLabel(ctx context.Context, userMessage string) (string, string) {
	system := `You are a casual personal assistant. The user just asked you to do something (search, create a task, etc).

Return a JSON object with two fields:
- "ack": A brief, casual acknowledgment (1 sentence, max 20 words) in the SAME language as the user. Do NOT do the task — just acknowledge you'll work on it. No emojis.
- "label": A short task label (3-6 words, in English) summarizing what the agent will do. Examples: "Search CS:GO tournaments", "Create grocery task", "Find flight prices".

Respond with ONLY the JSON object, no extra text.`

	req := oasis.ChatRequest{
		Messages: []oasis.ChatMessage{
			oasis.SystemMessage(system),
			oasis.UserMessage(userMessage),
		},
		ResponseSchema: ackLabelSchema,
	}

	fallbackLabel := userMessage
	if len(fallbackLabel) > 40 {
		fallbackLabel = fallbackLabel[:40]
	}

	resp, err := a.intentLLM.Chat(ctx, req)
	if err != nil {
		return "On it...", fallbackLabel
	}

	content := extractJSON(resp.Content)
	var parsed struct {
		Ack   string `json:"ack"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return resp.Content, fallbackLabel
	}

	ack := parsed.Ack
	if ack == "" {
		ack = "On it..."
	}
	label := parsed.Label
	if label == "" {
		label = fallbackLabel
	}
	return ack, label
}

// runActionLoop runs the bounded tool-calling loop for an action agent.
func (a *App) runActionLoop(
	ctx context.Context,
	chatID, text, conversationID, agentID, ackMsgID, originalMsgID string,
	inputCh <-chan string,
) (string, error) {
	memoryContext := ""
	if a.memory != nil && a.embedding != nil {
		embs, err := a.embedding.Embed(ctx, []string{text})
		if err == nil && len(embs) > 0 {
			mc, _ := a.memory.BuildContext(ctx, embs[0])
			memoryContext = mc
		}
	}

	conv, _ := a.getOrCreateConversation(ctx, chatID)
	messages := a.buildSystemPrompt(ctx, memoryContext, conv)

	// Resolve a skill for this request, if any, narrowing the available
	// tools and appending its instructions to the system prompt.
	toolDefs := a.tools.AllDefinitions()
	if skill := a.resolveSkill(ctx, text); skill != nil {
		log.Printf(" [agent:%s] skill: %s", agentID, skill.Name)
		if len(messages) > 0 {
			messages[0].Content += "\n## Active skill: " + skill.Name + "\n" + skill.Instructions + "\n"
		}
		if len(skill.Tools) > 0 {
			toolDefs = filterToolDefs(toolDefs, skill.Tools)
		}
	}

	if len(messages) > 0 {
		messages[0].Content += `
## Tool usage guidelines
- **web_search**: Use for general information lookup, quick answers, and finding URLs.
- **ask_user**: Use when you need clarification from the user before proceeding.
- **shell_exec**: Execute commands in the workspace directory.
- **file_read/file_write**: Read/write files in the workspace.
- **schedule_***: Create, list, update, or delete scheduled actions.
- **remember**: Save information to the knowledge base.
- **knowledge_search**: Search saved knowledge and past conversations.
- **task_***: Create, list, update, or delete the user's to-do items.
`
	}

	messages = append(messages, oasis.UserMessage(text))

	toolDefs = append(toolDefs, askUserDefinition)

	var finalText string

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		log.Printf(" [agent:%s] iteration %d/%d", agentID, iteration+1, maxToolIterations)

		req := oasis.ChatRequest{Messages: messages}
		if err := a.guards.RunPreLLM(ctx, &req); err != nil {
			if halt, ok := err.(*oasis.ErrHalt); ok {
				finalText = halt.Response
			} else {
				finalText = "Sorry, something went wrong. Please try again."
			}
			break
		}

		resp, err := a.actionLLM.ChatWithTools(ctx, req, toolDefs)
		if err != nil {
			log.Printf(" [agent:%s] LLM error: %v", agentID, err)
			finalText = "Sorry, something went wrong. Please try again."
			break
		}
		if err := a.guards.RunPostLLM(ctx, &resp); err != nil {
			if halt, ok := err.(*oasis.ErrHalt); ok {
				finalText = halt.Response
			} else {
				finalText = "Sorry, something went wrong. Please try again."
			}
			break
		}

		if len(resp.ToolCalls) == 0 {
			finalText = resp.Content
			break
		}

		assistantMsg := oasis.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)

		var lastOutput string
		for _, tc := range resp.ToolCalls {
			if tc.Name == "ask_user" {
				lastOutput = a.handleAskUser(ctx, chatID, agentID, originalMsgID, tc, inputCh)
				messages = append(messages, oasis.ToolResultMessage(tc.ID, lastOutput))
				continue
			}
			log.Printf(" [tool] %s(%s)", tc.Name, string(tc.Args))
			result, execErr := a.tools.Execute(ctx, tc.Name, tc.Args)
			content := result.Content
			if execErr != nil {
				content = "Error: " + execErr.Error()
			} else if result.Error != "" {
				content = "Error: " + result.Error
			}
			log.Printf(" [tool] %s -> %d chars", tc.Name, len(content))
			lastOutput = content
			messages = append(messages, oasis.ToolResultMessage(tc.ID, content))
		}

		if len(resp.ToolCalls) == 1 && resp.ToolCalls[0].Name != "ask_user" && !isErrorOutput(lastOutput) {
			if isSimpleTool(resp.ToolCalls[0].Name) {
				log.Printf(" [agent:%s] short-circuit: simple tool", agentID)
				finalText = lastOutput
				break
			}
		}
	}

	if finalText == "" {
		log.Printf(" [agent:%s] forcing final response (max iterations)", agentID)
		messages = append(messages, oasis.UserMessage(
			"You have used all available tool calls. Now summarize what you found and respond to the user. "+
				"If you found useful information, present it clearly. If you could not complete the task, explain what happened."))
		req := oasis.ChatRequest{Messages: messages}
		resp, err := a.actionLLM.ChatWithTools(ctx, req, nil)
		if err == nil {
			finalText = resp.Content
		} else {
			finalText = "Sorry, something went wrong."
		}
	}

	if finalText == "" {
		finalText = "Done."
	}

	_, _ = a.frontend.SendReply(ctx, chatID, originalMsgID, finalText)
	_ = a.frontend.Edit(ctx, chatID, ackMsgID, "Done.")

	log.Printf(" [agent:%s] sent %d chars (action)", agentID, len(finalText))
	return finalText, nil
}

// handleAskUser sends a question to the user and waits for a reply.
func (a *App) handleAskUser(ctx context.Context, chatID, agentID, originalMsgID string, tc oasis.ToolCall, inputCh <-chan string) string {
	var params struct {
		Question string `json:"question"`
	}
	_ = json.Unmarshal(tc.Args, &params)
	if params.Question == "" {
		params.Question = "Could you clarify?"
	}

	log.Printf(" [agent:%s] ask_user: %s", agentID, params.Question)

	botMsgID, err := a.frontend.SendReply(ctx, chatID, originalMsgID, params.Question)
	if err != nil {
		return "Error: failed to send question to user."
	}

	// Registration and status must happen before we start waiting below —
	// otherwise a fast user reply could arrive and find no agent listening.
	a.agents.RegisterMessage(botMsgID, agentID)
	a.agents.SetStatus(agentID, AgentWaitingForInput)

	select {
	case reply := <-inputCh:
		a.agents.SetStatus(agentID, AgentRunning)
		log.Printf(" [agent:%s] got user reply: %s", agentID, truncate(reply, 80))
		return "User replied: " + reply
	case <-time.After(5 * time.Minute):
		a.agents.SetStatus(agentID, AgentRunning)
		log.Printf(" [agent:%s] ask_user timed out", agentID)
		return "User did not respond within 5 minutes. Proceed with your best judgment."
	case <-ctx.Done():
		return "Operation cancelled."
	}
}

// resolveSkill embeds text, searches the top matching skills, and asks the
// intent LLM whether one applies. Returns nil when no skill should be used.
func (a *App) resolveSkill(ctx context.Context, text string) *oasis.Skill {
	if a.embedding == nil {
		return nil
	}
	embs, err := a.embedding.Embed(ctx, []string{text})
	if err != nil || len(embs) == 0 {
		return nil
	}
	candidates, err := a.store.SearchSkills(ctx, embs[0], 3)
	if err != nil || len(candidates) == 0 {
		return nil
	}

	var opts strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&opts, "%d. %s: %s\n", i, c.Name, c.Description)
	}

	system := `You choose which stored skill, if any, best matches the user's request.
Respond with a JSON object: {"choice": <index>} where <index> is the number of
the best matching skill, or {"choice": "none"} if none apply well.
Only choose a skill when it clearly matches — default to "none" when unsure.`

	req := oasis.ChatRequest{
		Messages: []oasis.ChatMessage{
			oasis.SystemMessage(system + "\n\nSkills:\n" + opts.String()),
			oasis.UserMessage(text),
		},
	}
	resp, err := a.intentLLM.Chat(ctx, req)
	if err != nil {
		return nil
	}

	var parsed struct {
		Choice json.RawMessage `json:"choice"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		return nil
	}
	choiceStr := strings.Trim(string(parsed.Choice), `"`)
	idx, err := strconv.Atoi(choiceStr)
	if err != nil || idx < 0 || idx >= len(candidates) {
		return nil
	}
	chosen := candidates[idx].Skill
	return &chosen
}

// filterToolDefs keeps only the definitions named in allow.
func filterToolDefs(defs []oasis.ToolDefinition, allow []string) []oasis.ToolDefinition {
	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[name] = true
	}
	out := make([]oasis.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		if allowed[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// isSimpleTool reports whether a single call to this tool, with no error
// output, can short-circuit the loop instead of requiring a synthesis pass.
func isSimpleTool(name string) bool {
	switch name {
	case "remember",
		"schedule_create", "schedule_list", "schedule_update", "schedule_delete",
		"skill_create", "skill_list", "skill_update", "skill_delete",
		"task_create", "task_list", "task_update", "task_delete":
		return true
	}
	return false
}

func isErrorOutput(output string) bool {
	return strings.HasPrefix(output, "Error:") || strings.HasPrefix(output, "error:")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
