package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	oasis "github.com/sandlake/oasis"
)

// route handles an incoming message through the routing pipeline.
func (a *App) route(ctx context.Context, msg oasis.IncomingMessage) {
	log.Printf(" [recv] from=%s chat=%s", msg.UserID, msg.ChatID)

	if a.tracer != nil {
		var span oasis.Span
		ctx, span = a.tracer.Start(ctx, "assistant.route",
			oasis.StringAttr("chat_id", msg.ChatID),
			oasis.StringAttr("user_id", msg.UserID),
		)
		defer span.End()
	}

	// 1. Auth check
	if !a.isOwner(ctx, msg.UserID) {
		log.Printf(" [auth] DENIED user=%s", msg.UserID)
		return
	}

	chatID := msg.ChatID

	// 2. Reply routing: check if this is a reply to an agent's ask_user question.
	// Must run before anything else consumes the message.
	if msg.ReplyToMsgID != "" {
		if msg.Text != "" && a.agents.RouteReply(msg.ReplyToMsgID, msg.Text) {
			log.Printf(" [agent] routed reply to agent (reply_to=%s)", msg.ReplyToMsgID)
			return
		}
	}

	_ = a.frontend.SendTyping(ctx, chatID)

	conv, err := a.getOrCreateConversation(ctx, chatID)
	if err != nil {
		log.Printf(" [conv] error: %v", err)
		return
	}

	// 3. Structural dispatch (no intent classification needed)

	if msg.Document != nil {
		a.handleDocument(ctx, msg, conv)
		return
	}

	if len(msg.Photos) > 0 {
		a.handlePhoto(ctx, msg, conv)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	// /new command — start a fresh conversation
	if strings.TrimSpace(text) == "/new" {
		now := oasis.NowUnix()
		_ = a.store.CreateConversation(ctx, oasis.Conversation{
			ID: oasis.NewID(), ChatID: chatID,
			CreatedAt: now, UpdatedAt: now,
		})
		log.Println(" [cmd] /new")
		return
	}

	// /status command
	if strings.TrimSpace(text) == "/status" {
		status := a.agents.FormatStatus()
		_, _ = a.frontend.Send(ctx, chatID, status)
		log.Println(" [cmd] /status")
		return
	}

	// URL messages (structural)
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		a.handleURL(ctx, msg, conv, text)
		return
	}

	// 4. Intent classification
	intent := ClassifyIntent(ctx, a.intentLLM, text)
	log.Printf(" [intent] %v", intent)

	switch intent {
	case oasis.IntentChat:
		log.Println(" [route] chat")
		response := a.handleChatStream(ctx, chatID, text, conv)
		a.spawnStore(ctx, conv, text, response)

	case oasis.IntentAction:
		log.Println(" [route] action (sub-agent)")
		a.spawnActionAgent(ctx, chatID, text, conv.ID, msg.ID)
	}
}

// isOwner checks if the user is the authorized owner.
// Auto-registers the first user as owner.
func (a *App) isOwner(ctx context.Context, userID string) bool {
	ownerStr, err := a.store.GetConfig(ctx, "owner_user_id")
	if err == nil && ownerStr != "" {
		return ownerStr == userID
	}

	if a.config.Telegram.AllowedUserID != "" {
		return a.config.Telegram.AllowedUserID == userID
	}

	// Auto-register first user as owner
	_ = a.store.SetConfig(ctx, "owner_user_id", userID)
	log.Printf(" [auth] registered owner user_id=%s", userID)
	return true
}

// handleDocument handles file uploads — ingest + optionally chat with context.
func (a *App) handleDocument(ctx context.Context, msg oasis.IncomingMessage, conv oasis.Conversation) {
	if a.ingestFile == nil || msg.Document == nil {
		return
	}

	data, filename, err := a.frontend.DownloadFile(ctx, msg.Document.FileID)
	if err != nil {
		log.Printf(" [file] download error: %v", err)
		_, _ = a.frontend.Send(ctx, msg.ChatID, "Failed to download file.")
		return
	}

	content := string(data)
	result, err := a.ingestFile(ctx, content, filename)
	if err != nil {
		log.Printf(" [ingest] error: %v", err)
		_, _ = a.frontend.Send(ctx, msg.ChatID, "Failed to process file.")
		return
	}

	caption := msg.Caption
	if caption != "" {
		maxContext := 30000
		fileContext := content
		if len(fileContext) > maxContext {
			fileContext = fileContext[:maxContext]
		}
		contextStr := fmt.Sprintf("## File: %s\n\n%s", filename, fileContext)
		response := a.handleChatStreamWithContext(ctx, msg.ChatID, caption, conv, contextStr, nil)
		a.spawnStore(ctx, conv, caption, response)
	} else {
		_, _ = a.frontend.Send(ctx, msg.ChatID, result)
		a.spawnStore(ctx, conv, "[file upload]", result)
	}
}

// handlePhoto downloads the largest photo rendition (Telegram orders Photos
// smallest-first), base64-encodes it, and calls the chat LLM with the image
// attached alongside the caption.
func (a *App) handlePhoto(ctx context.Context, msg oasis.IncomingMessage, conv oasis.Conversation) {
	text := msg.Caption
	if text == "" {
		text = "[photo]"
	}

	var attachments []oasis.Attachment
	if len(msg.Photos) > 0 {
		largest := msg.Photos[len(msg.Photos)-1]
		data, _, err := a.frontend.DownloadFile(ctx, largest.FileID)
		if err != nil {
			log.Printf(" [photo] download error: %v", err)
		} else {
			mime := largest.MimeType
			if mime == "" {
				mime = "image/jpeg"
			}
			attachments = []oasis.Attachment{{
				MimeType: mime,
				Base64:   base64.StdEncoding.EncodeToString(data),
			}}
		}
	}

	response := a.handleChatStreamWithContext(ctx, msg.ChatID, text, conv, "", attachments)
	a.spawnStore(ctx, conv, text, response)
}

// handleURL fetches a URL's raw HTML and ingests it into the knowledge base,
// replying with the short confirmation the ingestor returns. This is a
// structural dispatch step (like /new and /status) — it runs ahead of intent
// classification and never invokes the action LLM.
func (a *App) handleURL(ctx context.Context, msg oasis.IncomingMessage, conv oasis.Conversation, url string) {
	if a.ingestURL == nil {
		return
	}

	html, err := a.urlFetch(ctx, url)
	if err != nil {
		log.Printf(" [url] fetch error: %v", err)
		_, _ = a.frontend.Send(ctx, msg.ChatID, "Failed to fetch URL.")
		return
	}

	confirmation, err := a.ingestURL(ctx, html, url)
	if err != nil {
		log.Printf(" [url] ingest error: %v", err)
		_, _ = a.frontend.Send(ctx, msg.ChatID, "Failed to process URL.")
		return
	}

	_, _ = a.frontend.Send(ctx, msg.ChatID, confirmation)
	a.spawnStore(ctx, conv, "[url] "+url, confirmation)
}

// fetchURL downloads a page's raw HTML with a short timeout and a browser-like
// User-Agent (some sites refuse bare Go HTTP clients).
func fetchURL(ctx context.Context, rawURL string) (string, error) {
	client := &http.Client{Timeout: 15 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OasisBot/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}
	return string(body), nil
}
