package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/redact"
)

func TestNewClient_MissingAPIKeyDisablesEnrichment(t *testing.T) {
	os.Unsetenv("TARKA_TEST_LLM_KEY")
	_, ok := NewClient(Config{APIKeyEnv: "TARKA_TEST_LLM_KEY"}, redact.NewService())
	assert.False(t, ok)
}

func TestEnrich_AppendsHypothesisFromValidJSONReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"pod OOM\",\"likely_root_cause\":\"memory limit too low\",\"confidence\":70,\"next_steps\":[\"kubectl describe pod x -n y\"]}"}}]}`))
	}))
	defer server.Close()

	os.Setenv("TARKA_TEST_LLM_KEY", "fake-key")
	defer os.Unsetenv("TARKA_TEST_LLM_KEY")

	client, ok := NewClient(Config{APIKeyEnv: "TARKA_TEST_LLM_KEY", BaseURL: server.URL, Model: "test-model", RedactTier: "basic"}, redact.NewService())
	require.True(t, ok)

	inv := &models.Investigation{
		JobID:    "job-1",
		Alert:    models.AlertInstance{AlertName: "KubeContainerOOMKilled"},
		Identity: models.Identity{Status: models.IdentityOK, Kind: "Pod", Namespace: "prod", Name: "api-7f9"},
		Analysis: models.Analysis{Classification: "actionable", Impact: 80, Confidence: 60, Noise: 10},
	}

	status := client.Enrich(context.Background(), inv)
	assert.Equal(t, "ok", status)
	require.Len(t, inv.Analysis.Hypotheses, 1)
	assert.Equal(t, "memory limit too low", inv.Analysis.Hypotheses[0].Statement)
	assert.Equal(t, 70, inv.Analysis.Hypotheses[0].Confidence)
	assert.Contains(t, inv.Analysis.NextSteps, "kubectl describe pod x -n y")
}

func TestEnrich_ProviderErrorIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	os.Setenv("TARKA_TEST_LLM_KEY", "fake-key")
	defer os.Unsetenv("TARKA_TEST_LLM_KEY")

	client, ok := NewClient(Config{APIKeyEnv: "TARKA_TEST_LLM_KEY", BaseURL: server.URL, Model: "test-model"}, redact.NewService())
	require.True(t, ok)

	inv := &models.Investigation{Identity: models.Identity{Status: models.IdentityOK}}
	status := client.Enrich(context.Background(), inv)
	assert.Contains(t, status, "error:")
	assert.Empty(t, inv.Analysis.Hypotheses)
}

func TestDefaultBaseURL_PerProvider(t *testing.T) {
	assert.Contains(t, defaultBaseURL("openai"), "openai.com")
	assert.Contains(t, defaultBaseURL("anthropic"), "anthropic.com")
	assert.Contains(t, defaultBaseURL("ollama"), "localhost")
}
