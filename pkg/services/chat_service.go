package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tarkyaio/tarka/pkg/models"
)

// ChatService owns `chat_threads`/`chat_messages`: the interactive chat
// spec.md §1 describes lets an operator re-query evidence under the same
// read-only, redacted policy as the original investigation. This package
// only persists the conversation; re-querying evidence and generating
// assistant replies is the caller's responsibility (pkg/llm over the
// case's stored Evidence), kept separate so chat history survives even
// when LLM enrichment is disabled.
type ChatService struct {
	db *sql.DB
}

// NewChatService builds a ChatService over a ready connection pool.
func NewChatService(db *sql.DB) *ChatService {
	return &ChatService{db: db}
}

// CreateThread opens a new chat thread anchored to caseID.
func (s *ChatService) CreateThread(ctx context.Context, caseID, createdBy string) (*models.ChatThread, error) {
	t := models.ChatThread{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_threads (id, case_id, created_by, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.CaseID, nullableString(t.CreatedBy), t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create chat thread: %w", err)
	}
	return &t, nil
}

// AddMessage appends one message (role "user" or "assistant") to a thread.
func (s *ChatService) AddMessage(ctx context.Context, threadID, role, content string) (*models.ChatMessage, error) {
	m := models.ChatMessage{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, thread_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ThreadID, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("add chat message: %w", err)
	}
	return &m, nil
}

// GetThread returns a thread and its messages in chronological order.
func (s *ChatService) GetThread(ctx context.Context, threadID string) (*models.ChatThreadResponse, error) {
	var t models.ChatThread
	var createdBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, created_by, created_at FROM chat_threads WHERE id = $1`, threadID,
	).Scan(&t.ID, &t.CaseID, &createdBy, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat thread: %w", err)
	}
	t.CreatedBy = createdBy.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, content, created_at FROM chat_messages
		WHERE thread_id = $1 ORDER BY created_at ASC`, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.ChatThreadResponse{Thread: t, Messages: messages}, nil
}

// RecordCaseAction appends an audit row for an operator- or system-
// initiated action against a case (re-run, acknowledge, escalate).
func (s *ChatService) RecordCaseAction(ctx context.Context, caseID, action, actor, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO case_actions (id, case_id, action, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.NewString(), caseID, action, nullableString(actor), nullableString(detail),
	)
	if err != nil {
		return fmt.Errorf("record case action: %w", err)
	}
	return nil
}
