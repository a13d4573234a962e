package models

import "time"

// ChatThread is a conversation anchored to a completed (or in-progress)
// investigation case, letting an operator ask follow-up questions that
// re-run evidence lookups under the same read-only, redacted policy as the
// original pipeline run.
type ChatThread struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessage is one message within a ChatThread.
type ChatMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CaseAction records an operator- or system-initiated action taken against
// a case (e.g. re-run, acknowledge, escalate) for audit purposes.
type CaseAction struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateChatThreadRequest is the payload for POST /chat/threads.
type CreateChatThreadRequest struct {
	CaseID    string `json:"case_id"`
	CreatedBy string `json:"created_by,omitempty"`
}

// PostChatMessageRequest is the payload for POST /chat/threads/{id}/messages.
type PostChatMessageRequest struct {
	Content string `json:"content"`
}

// ChatThreadResponse wraps a thread with its messages for API responses.
type ChatThreadResponse struct {
	Thread   ChatThread    `json:"thread"`
	Messages []ChatMessage `json:"messages"`
}
