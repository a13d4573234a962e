package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/services"
)

type fakeChatStore struct {
	threads  map[string]*models.ChatThread
	messages map[string][]models.ChatMessage
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{threads: map[string]*models.ChatThread{}, messages: map[string][]models.ChatMessage{}}
}

func (f *fakeChatStore) CreateThread(_ context.Context, caseID, createdBy string) (*models.ChatThread, error) {
	t := &models.ChatThread{ID: "thread-1", CaseID: caseID, CreatedBy: createdBy}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeChatStore) AddMessage(_ context.Context, threadID, role, content string) (*models.ChatMessage, error) {
	m := models.ChatMessage{ID: "msg-" + role, ThreadID: threadID, Role: role, Content: content}
	f.messages[threadID] = append(f.messages[threadID], m)
	return &m, nil
}

func (f *fakeChatStore) GetThread(_ context.Context, threadID string) (*models.ChatThreadResponse, error) {
	thread, ok := f.threads[threadID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &models.ChatThreadResponse{Thread: *thread, Messages: f.messages[threadID]}, nil
}

type fakeCaseStore struct {
	run *services.RunRecord
	err error
}

func (f *fakeCaseStore) GetLatestRun(_ context.Context, _ string) (*services.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func newTestHandler(chatStore ChatStore, caseStore CaseStore) (*Handler, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	h := &Handler{Chat: chatStore, Cases: caseStore, Hub: NewHub()}
	r := gin.New()
	h.RegisterRoutes(r)
	return h, r
}

func TestCreateThread(t *testing.T) {
	chatStore := newFakeChatStore()
	_, r := newTestHandler(chatStore, &fakeCaseStore{})

	body := strings.NewReader(`{"case_id":"case-1","created_by":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/threads", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var thread models.ChatThread
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &thread))
	assert.Equal(t, "case-1", thread.CaseID)
	assert.Equal(t, "alice", thread.CreatedBy)
}

func TestCreateThreadRequiresCaseID(t *testing.T) {
	_, r := newTestHandler(newFakeChatStore(), &fakeCaseStore{})

	req := httptest.NewRequest(http.MethodPost, "/chat/threads", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMessageAppendsGroundedReply(t *testing.T) {
	chatStore := newFakeChatStore()
	chatStore.threads["thread-1"] = &models.ChatThread{ID: "thread-1", CaseID: "case-1"}
	caseStore := &fakeCaseStore{run: &services.RunRecord{
		Analysis: models.Analysis{
			Classification: "actionable",
			Impact:         80,
			Confidence:     70,
			Findings: []models.Finding{
				{Severity: "critical", Summary: "container OOMKilled twice in 10m"},
			},
			NextSteps: []string{"raise memory limit"},
		},
	}}
	_, r := newTestHandler(chatStore, caseStore)

	body := strings.NewReader(`{"content":"why is this actionable?"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/threads/thread-1/messages", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, chatStore.messages["thread-1"], 2)
	assert.Equal(t, "user", chatStore.messages["thread-1"][0].Role)
	assert.Equal(t, "assistant", chatStore.messages["thread-1"][1].Role)
	assert.Contains(t, chatStore.messages["thread-1"][1].Content, "OOMKilled")
	assert.Contains(t, chatStore.messages["thread-1"][1].Content, "raise memory limit")
}

func TestPostMessageRejectsEmptyContent(t *testing.T) {
	chatStore := newFakeChatStore()
	_, r := newTestHandler(chatStore, &fakeCaseStore{})

	req := httptest.NewRequest(http.MethodPost, "/chat/threads/thread-1/messages", strings.NewReader(`{"content":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComposeReplyHandlesMissingRun(t *testing.T) {
	chatStore := newFakeChatStore()
	chatStore.threads["thread-1"] = &models.ChatThread{ID: "thread-1", CaseID: "case-1"}
	h := &Handler{Chat: chatStore, Cases: &fakeCaseStore{err: services.ErrNotFound}, Hub: NewHub()}

	reply := h.composeReply(context.Background(), "thread-1", "what happened?")
	assert.Contains(t, reply, "no completed investigation run")
}
