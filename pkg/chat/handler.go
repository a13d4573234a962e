package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/services"
)

// ChatStore is the subset of *services.ChatService a Handler needs.
type ChatStore interface {
	CreateThread(ctx context.Context, caseID, createdBy string) (*models.ChatThread, error)
	AddMessage(ctx context.Context, threadID, role, content string) (*models.ChatMessage, error)
	GetThread(ctx context.Context, threadID string) (*models.ChatThreadResponse, error)
}

// CaseStore is the subset of *services.CaseService a Handler needs to
// ground an assistant reply in the case's latest investigation.
type CaseStore interface {
	GetLatestRun(ctx context.Context, caseID string) (*services.RunRecord, error)
}

// Handler exposes the chat transport: thread creation, posting a message
// (which synchronously appends an assistant reply grounded in the case's
// latest run), and a websocket that streams both sides of the conversation
// live.
type Handler struct {
	Chat  ChatStore
	Cases CaseStore
	Hub   *Hub
}

// RegisterRoutes attaches the three chat endpoints to r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/chat/threads", h.createThread)
	r.POST("/chat/threads/:id/messages", h.postMessage)
	r.GET("/chat/threads/:id/ws", h.streamThread)
}

func (h *Handler) createThread(c *gin.Context) {
	var req models.CreateChatThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CaseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_id is required"})
		return
	}

	thread, err := h.Chat.CreateThread(c.Request.Context(), req.CaseID, req.CreatedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create thread"})
		return
	}
	c.JSON(http.StatusCreated, thread)
}

func (h *Handler) postMessage(c *gin.Context) {
	threadID := c.Param("id")

	var req models.PostChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	ctx := c.Request.Context()

	userMsg, err := h.Chat.AddMessage(ctx, threadID, "user", req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record message"})
		return
	}
	h.publish(threadID, userMsg)

	reply := h.composeReply(ctx, threadID, req.Content)
	assistantMsg, err := h.Chat.AddMessage(ctx, threadID, "assistant", reply)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record reply"})
		return
	}
	h.publish(threadID, assistantMsg)

	c.JSON(http.StatusAccepted, gin.H{"message": userMsg, "reply": assistantMsg})
}

// composeReply grounds an assistant's answer in the case's latest run
// rather than replaying evidence providers live — a deliberately smaller
// scope than re-running the full evidence collection stage per question,
// since the thread only ever discusses a case that already finished an
// investigation.
func (h *Handler) composeReply(ctx context.Context, threadID, question string) string {
	thread, err := h.Chat.GetThread(ctx, threadID)
	if err != nil {
		slog.Warn("chat: failed to load thread for reply", "thread_id", threadID, "error", err)
		return "I couldn't find this thread's case to answer from."
	}

	run, err := h.Cases.GetLatestRun(ctx, thread.Thread.CaseID)
	if err != nil {
		slog.Warn("chat: failed to load latest run for reply", "case_id", thread.Thread.CaseID, "error", err)
		return "This case has no completed investigation run to answer from yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the latest run (classification: %s, impact: %d, confidence: %d):\n",
		run.Analysis.Classification, run.Analysis.Impact, run.Analysis.Confidence)
	if len(run.Analysis.Findings) == 0 {
		b.WriteString("No findings were recorded for this run.")
	} else {
		for _, f := range run.Analysis.Findings {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Severity, f.Summary)
		}
	}
	if len(run.Analysis.NextSteps) > 0 {
		b.WriteString("Next steps: " + strings.Join(run.Analysis.NextSteps, "; "))
	}
	return b.String()
}

func (h *Handler) publish(threadID string, msg *models.ChatMessage) {
	if h.Hub == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.Hub.Publish(threadID, data)
}

// streamThread upgrades to a websocket and streams every message (user and
// assistant) posted to threadID from this point on, via Hub.
func (h *Handler) streamThread(c *gin.Context) {
	threadID := c.Param("id")

	// Origin validation is deferred; a production deployment would replace
	// InsecureSkipVerify with an OriginPatterns allowlist from config.
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Warn("chat: websocket upgrade failed", "thread_id", threadID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	ctx := conn.CloseRead(c.Request.Context())

	ch, unsubscribe := h.Hub.Subscribe(threadID)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
