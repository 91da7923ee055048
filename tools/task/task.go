// Package task exposes to-do list management to agents through the standard
// Tool interface. Tasks are opaque to the core beyond their lifecycle status
// and priority, used to build the "active task summary" fed into the
// sub-agent's system prompt.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	oasis "github.com/sandlake/oasis"
)

// Tool manages the user's task list.
type Tool struct {
	store oasis.VectorStore
}

// Compile-time interface check.
var _ oasis.Tool = (*Tool)(nil)

// New creates a task Tool.
func New(store oasis.VectorStore) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{
		{
			Name:        "task_create",
			Description: "Create a new task/to-do item for the user.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"title":{"type":"string","description":"Short task title"},
				"description":{"type":"string","description":"Optional longer description"},
				"priority":{"type":"string","enum":["low","medium","high"],"description":"Task priority, default medium"}
			},"required":["title"]}`),
		},
		{
			Name:        "task_list",
			Description: "List the user's tasks, optionally filtered by status.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"status":{"type":"string","enum":["todo","in_progress","done"],"description":"Optional status filter"}
			}}`),
		},
		{
			Name:        "task_update",
			Description: "Update a task's status by matching its title substring.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"title_query":{"type":"string","description":"Substring to match the task title"},
				"status":{"type":"string","enum":["todo","in_progress","done"],"description":"New status"}
			},"required":["title_query","status"]}`),
		},
		{
			Name:        "task_delete",
			Description: "Delete a task by matching its title substring, or '*' to delete all.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"title_query":{"type":"string","description":"Substring to match the title, or '*' for all"}
			},"required":["title_query"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (oasis.ToolResult, error) {
	var result string
	var err error

	switch name {
	case "task_create":
		result, err = t.handleCreate(ctx, args)
	case "task_list":
		result, err = t.handleList(ctx, args)
	case "task_update":
		result, err = t.handleUpdate(ctx, args)
	case "task_delete":
		result, err = t.handleDelete(ctx, args)
	default:
		return oasis.ToolResult{Error: "unknown task tool: " + name}, nil
	}

	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	return oasis.ToolResult{Content: result}, nil
}

func (t *Tool) handleCreate(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid args: %w", err)
	}
	if p.Title == "" {
		return "", fmt.Errorf("title is required")
	}
	priority := oasis.TaskMedium
	switch p.Priority {
	case "low":
		priority = oasis.TaskLow
	case "high":
		priority = oasis.TaskHigh
	}

	now := oasis.NowUnix()
	task := oasis.Task{
		ID:          oasis.NewID(),
		Title:       p.Title,
		Description: p.Description,
		Status:      oasis.TaskTodo,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.CreateTask(ctx, task); err != nil {
		return "", err
	}
	return fmt.Sprintf("Created task %q (priority: %s)", task.Title, task.Priority), nil
}

func (t *Tool) handleList(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(args, &p)

	tasks, err := t.store.ListTasks(ctx, oasis.TaskStatus(p.Status))
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks.", nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%d task(s):\n\n", len(tasks))
	for i, task := range tasks {
		fmt.Fprintf(&out, "%d. %s [%s, %s]\n", i+1, task.Title, task.Status, task.Priority)
		if task.Description != "" {
			fmt.Fprintf(&out, "   %s\n", task.Description)
		}
	}
	return out.String(), nil
}

func (t *Tool) handleUpdate(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		TitleQuery string `json:"title_query"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid args: %w", err)
	}
	if p.TitleQuery == "" || p.Status == "" {
		return "", fmt.Errorf("title_query and status are required")
	}

	matches, err := t.matchTasks(ctx, p.TitleQuery)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No task matching %q.", p.TitleQuery), nil
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, task := range matches {
			names[i] = task.Title
		}
		return fmt.Sprintf("Multiple matches: %s. Be more specific.", strings.Join(names, ", ")), nil
	}

	if err := t.store.UpdateTaskStatus(ctx, matches[0].ID, oasis.TaskStatus(p.Status)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %q to %s", matches[0].Title, p.Status), nil
}

func (t *Tool) handleDelete(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		TitleQuery string `json:"title_query"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid args: %w", err)
	}

	if p.TitleQuery == "*" {
		count, err := t.store.DeleteAllTasks(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted all %d task(s).", count), nil
	}

	matches, err := t.matchTasks(ctx, p.TitleQuery)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No task matching %q.", p.TitleQuery), nil
	}
	for _, task := range matches {
		if err := t.store.DeleteTask(ctx, task.ID); err != nil {
			return "", err
		}
	}
	if len(matches) == 1 {
		return fmt.Sprintf("Deleted: %s", matches[0].Title), nil
	}
	return fmt.Sprintf("Deleted %d task(s).", len(matches)), nil
}

// matchTasks returns all tasks whose title contains query (case-insensitive).
func (t *Tool) matchTasks(ctx context.Context, query string) ([]oasis.Task, error) {
	tasks, err := t.store.ListTasks(ctx, "")
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)
	var matches []oasis.Task
	for _, task := range tasks {
		if strings.Contains(strings.ToLower(task.Title), lower) {
			matches = append(matches, task)
		}
	}
	return matches, nil
}

// Summary builds the "active task summary" injected into the sub-agent's
// system prompt (spec.md §4.3.1 step 2). Returns "" when there are no
// non-done tasks.
func Summary(ctx context.Context, store oasis.VectorStore) string {
	todo, _ := store.ListTasks(ctx, oasis.TaskTodo)
	inProgress, _ := store.ListTasks(ctx, oasis.TaskInProgress)
	all := append(append([]oasis.Task{}, inProgress...), todo...)
	if len(all) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString("## Active tasks\n")
	for _, task := range all {
		fmt.Fprintf(&out, "- [%s, %s] %s\n", task.Status, task.Priority, task.Title)
	}
	return out.String()
}
