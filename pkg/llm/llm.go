// Package llm is the narrow, optional enrichment step that runs after
// scoring: it sends a redacted summary of an investigation to an LLM
// provider's chat-completions endpoint and folds back a short narrative
// summary and next-step suggestions. It never touches the deterministic
// scores, classification, or findings — those are computed before this
// package ever runs, and nothing here can override them. Failure here is
// always non-fatal: a report with no LLM section is still a complete
// report.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/redact"
)

// Enricher is implemented by Client; a separate interface lets the pipeline
// depend on it without importing net/http, and lets tests substitute a fake.
type Enricher interface {
	// Enrich mutates inv.Analysis.Hypotheses/NextSteps by appending (never
	// replacing) an LLM-sourced hypothesis, and returns the status string
	// stored in inv.LLMStatus ("ok", "skipped:<reason>", "error:<reason>").
	Enrich(ctx context.Context, inv *models.Investigation) string
}

// Client talks to an OpenAI-compatible chat-completions endpoint. The
// provider, model, and API key are all environment-driven so swapping
// providers never requires a code change.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	redactor    *redact.Service
	redactTier  string
	includeLogs bool
}

// Config is the subset of pkg/config.Config this package needs, kept
// narrow so llm doesn't import the whole Config struct.
type Config struct {
	Provider    string // "openai" | "anthropic" | "ollama" — selects the base URL when BaseURL is empty
	BaseURL     string // explicit override, e.g. for a self-hosted gateway
	APIKeyEnv   string // name of the environment variable holding the API key
	Model       string
	RedactTier  string
	IncludeLogs bool
}

// NewClient builds a Client from cfg. It returns (nil, false) when the
// provider is misconfigured (no API key in the named env var), signaling
// the caller to run the pipeline with LLM enrichment disabled rather than
// fail startup — enrichment is always optional.
func NewClient(cfg Config, redactor *redact.Service) (*Client, bool) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		slog.Warn("llm: no API key found, enrichment disabled", "env_var", cfg.APIKeyEnv)
		return nil, false
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       cfg.Model,
		redactor:    redactor,
		redactTier:  cfg.RedactTier,
		includeLogs: cfg.IncludeLogs,
	}, true
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "anthropic":
		return "https://api.anthropic.com/v1/messages"
	case "ollama":
		return "http://localhost:11434/v1/chat/completions"
	default:
		return "https://api.openai.com/v1/chat/completions"
	}
}

// Enrich redacts a compact evidence summary, sends it to the configured
// model, and appends the returned narrative as a low-weight Hypothesis plus
// any suggested next steps. It never errors out to the caller: any failure
// is recorded as inv.LLMStatus and the investigation is returned as-is.
func (c *Client) Enrich(ctx context.Context, inv *models.Investigation) string {
	prompt, ok := c.buildPrompt(inv)
	if !ok {
		return "skipped:fail-closed redaction"
	}

	reply, err := c.complete(ctx, prompt)
	if err != nil {
		slog.Warn("llm: completion failed", "job_id", inv.JobID, "error", err)
		return "error:" + err.Error()
	}

	var parsed completionResult
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		// The model didn't return the requested JSON shape; still surface
		// its prose as a single hypothesis rather than discarding it.
		inv.Analysis.Hypotheses = append(inv.Analysis.Hypotheses, models.Hypothesis{
			Statement:  reply,
			Confidence: 0,
		})
		return "ok"
	}

	inv.Analysis.Hypotheses = append(inv.Analysis.Hypotheses, models.Hypothesis{
		Statement:  parsed.LikelyRootCause,
		Confidence: parsed.Confidence,
		Supporting: []string{parsed.Summary},
	})
	inv.Analysis.NextSteps = append(inv.Analysis.NextSteps, parsed.NextSteps...)
	return "ok"
}

// completionResult is the JSON shape the prompt instructs the model to
// return: a narrow, four-field enrichment, never the full report.
type completionResult struct {
	Summary         string   `json:"summary"`
	LikelyRootCause string   `json:"likely_root_cause"`
	Confidence      int      `json:"confidence"`
	NextSteps       []string `json:"next_steps"`
}

// buildPrompt redacts the evidence text (k8s object YAML, log lines, AWS
// event messages) at the configured tier before it ever reaches the
// prompt string. ok is false when any piece fails closed, in which case no
// request is sent at all.
func (c *Client) buildPrompt(inv *models.Investigation) (string, bool) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Alert: %s\n", inv.Alert.AlertName)
	fmt.Fprintf(&b, "Identity: %s/%s (%s)\n", inv.Identity.Namespace, inv.Identity.Name, inv.Identity.Kind)
	fmt.Fprintf(&b, "Classification: %s (impact=%d confidence=%d noise=%d)\n",
		inv.Analysis.Classification, inv.Analysis.Impact, inv.Analysis.Confidence, inv.Analysis.Noise)

	for _, f := range inv.Analysis.Findings {
		masked, ok := c.redactor.Redact(f.Summary, c.redactTier)
		if !ok {
			return "", false
		}
		fmt.Fprintf(&b, "Finding [%s]: %s\n", f.ModuleID, masked)
	}

	if c.includeLogs && inv.Evidence.Logs.Status == models.SlotOK {
		for _, p := range inv.Evidence.Logs.ParsedPatterns {
			masked, ok := c.redactor.Redact(p.RepresentativeLine, c.redactTier)
			if !ok {
				return "", false
			}
			fmt.Fprintf(&b, "Log pattern [%s x%d]: %s\n", p.Kind, p.Count, masked)
		}
	}

	b.WriteString("\nRespond with JSON only: {\"summary\": str, \"likely_root_cause\": str, \"confidence\": 0-100, \"next_steps\": [str]}")
	return b.String(), true
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an SRE assistant. Only use the evidence given; never invent identity, scope, or metrics not present in the prompt."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm provider returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
