package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/models"
)

func TestDetectBackend(t *testing.T) {
	assert.Equal(t, backendLoki, detectBackend("http://loki.observability.svc:3100"))
	assert.Equal(t, backendVictoriaLogs, detectBackend("http://victorialogs.observability.svc:9428"))
	assert.Equal(t, backendVictoriaLogs, detectBackend("http://vlogs-read.internal:8080"))
	assert.Equal(t, backendLoki, detectBackend("not a url"))
}

func TestLogsClient_FetchLogs_Loki(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Contains(t, r.URL.RawQuery, `pod%3D%22api-7f9%22`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[
			{"stream":{"pod":"api-7f9"},"values":[["1700000000000000000","panic: runtime error"]]}
		]}}`))
	}))
	defer server.Close()

	client := NewLogsClient(server.URL, backendLoki)
	identity := models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"}

	slot := client.FetchLogs(context.Background(), identity, time.Hour)
	require.Equal(t, models.SlotOK, slot.Status)
	assert.Equal(t, "/loki/api/v1/query_range", gotPath)
	assert.Equal(t, 1, slot.RawLineCount)
	assert.NotEmpty(t, slot.ParsedPatterns)
}

func TestLogsClient_FetchLogs_VictoriaLogs(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{\"_time\":\"2026-07-31T00:00:00Z\",\"_msg\":\"ERROR connection refused\"}\n"))
	}))
	defer server.Close()

	client := NewLogsClient(server.URL, backendVictoriaLogs)
	identity := models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"}

	slot := client.FetchLogs(context.Background(), identity, time.Hour)
	require.Equal(t, models.SlotOK, slot.Status)
	assert.Equal(t, "/select/logsql/query", gotPath)
	assert.Equal(t, 1, slot.RawLineCount)
}

func TestLogsClient_FetchLogs_EmptyResultIsSlotEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[]}}`))
	}))
	defer server.Close()

	client := NewLogsClient(server.URL, backendLoki)
	identity := models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"}

	slot := client.FetchLogs(context.Background(), identity, time.Hour)
	assert.Equal(t, models.SlotEmpty, slot.Status)
}

func TestLogsClient_FetchLogs_HTTPErrorReasonTokens(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusServiceUnavailable, "http_error:503"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "not_found"},
		{http.StatusBadGateway, "http_error:502"},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))

		client := NewLogsClient(server.URL, backendLoki)
		identity := models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"}

		slot := client.FetchLogs(context.Background(), identity, time.Hour)
		assert.Equal(t, models.SlotUnavailable, slot.Status)
		assert.Equal(t, tc.want, slot.Reason)
		server.Close()
	}
}

func TestLogsClient_FetchLogsByPrefix_UsesRegexMatcher(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[
			{"stream":{"pod":"nightly-etl-28tdx"},"values":[["1700000000000000000","job exited with code 1"]]}
		]}}`))
	}))
	defer server.Close()

	client := NewLogsClient(server.URL, backendLoki)
	slot := client.FetchLogsByPrefix(context.Background(), "batch", "nightly-etl", time.Hour)

	require.Equal(t, models.SlotOK, slot.Status)
	assert.Contains(t, gotQuery, `pod=~"nightly-etl.*"`)
}

func TestLogsClient_FetchLogs_IdentityNotResolved(t *testing.T) {
	client := NewLogsClient("http://unused", backendLoki)
	identity := models.Identity{Status: models.IdentityMissing}

	slot := client.FetchLogs(context.Background(), identity, time.Hour)
	assert.Equal(t, models.SlotUnavailable, slot.Status)
}
