package ingestion

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/models"
)

type fakeQueue struct {
	published []models.InvestigationJob
	failNext  bool
}

func (q *fakeQueue) Publish(ctx context.Context, job models.InvestigationJob) error {
	if q.failNext {
		return assert.AnError
	}
	q.published = append(q.published, job)
	return nil
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

const samplePayload = `{
  "version": "4",
  "status": "firing",
  "alerts": [
    {
      "status": "firing",
      "labels": {"alertname": "CPUThrottlingHigh", "namespace": "prod", "pod": "api-7f9", "severity": "warning"},
      "annotations": {"summary": "high throttle"},
      "startsAt": "2026-07-31T10:00:00Z",
      "fingerprint": "abc123"
    }
  ]
}`

func TestHandleAlerts_EnqueuesAcceptedAlert(t *testing.T) {
	q := &fakeQueue{}
	h := &Handler{Stats: &Stats{}, Queue: q}
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString(samplePayload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.published, 1)
	assert.Equal(t, "CPUThrottlingHigh", q.published[0].Alert.AlertName)
	assert.Equal(t, int64(1), h.Stats.Enqueued.Load())
}

func TestHandleAlerts_AllowlistDrop(t *testing.T) {
	q := &fakeQueue{}
	h := &Handler{Stats: &Stats{}, Queue: q, Allowlist: NewAllowlist([]string{"Watchdog"})}
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString(samplePayload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, q.published)
	assert.Equal(t, int64(1), h.Stats.SkippedAllowlist.Load())
}

func TestHandleAlerts_ResolvedAlertsIgnored(t *testing.T) {
	q := &fakeQueue{}
	h := &Handler{Stats: &Stats{}, Queue: q}
	r := newTestRouter(h)

	resolved := `{"status":"resolved","alerts":[{"status":"resolved","labels":{"alertname":"CPUThrottlingHigh","namespace":"prod","pod":"api-7f9"},"fingerprint":"x"}]}`
	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString(resolved))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, q.published)
}

func TestHandleAlerts_MalformedBodyIs400(t *testing.T) {
	q := &fakeQueue{}
	h := &Handler{Stats: &Stats{}, Queue: q}
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, q.published)
}

func TestHandleAlerts_PublishFailureIs5xxAndNoPartialState(t *testing.T) {
	q := &fakeQueue{failNext: true}
	h := &Handler{Stats: &Stats{}, Queue: q}
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewBufferString(samplePayload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, int64(1), h.Stats.PublishFailed.Load())
	assert.Equal(t, int64(0), h.Stats.Enqueued.Load())
}

func TestHandleHealthz_OK(t *testing.T) {
	h := &Handler{Stats: &Stats{}, Queue: &fakeQueue{}}
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "\"status\":\"ok\"")
}
