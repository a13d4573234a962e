package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// GitHubClient implements ChangeProvider over the GitHub REST API,
// adapted from the runbook-fetching HTTP client: same bearer-token
// authentication and defensive HTTP handling, extended with the
// commits/workflow-runs endpoints change correlation needs.
type GitHubClient struct {
	httpClient *http.Client
	token      string
	cache      *ttlCache
}

// NewGitHubClient builds a client; token may be empty (public repos only,
// lower rate limits). Responses are cached for a minute so a chat thread
// re-asking about the same case does not re-spend GitHub's rate limit.
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		cache:      newTTLCache(1 * time.Minute),
	}
}

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commit"`
}

type githubWorkflowRunsResponse struct {
	WorkflowRuns []struct {
		ID         int64     `json:"id"`
		Name       string    `json:"name"`
		Conclusion string    `json:"conclusion"`
		UpdatedAt  time.Time `json:"updated_at"`
	} `json:"workflow_runs"`
}

// FetchChanges lists recent commits and workflow runs for owner/repo
// (identity.Namespace/identity.Name is repurposed to carry owner/repo for
// Change-family identities — see pkg/pipeline's target-resolution stage).
func (c *GitHubClient) FetchChanges(ctx context.Context, identity models.Identity, window time.Duration) models.ChangeSlot {
	owner, repo := identity.Namespace, identity.Name
	if owner == "" || repo == "" {
		return models.ChangeSlot{Status: models.SlotUnavailable, Reason: "no repository could be inferred for this identity"}
	}

	since := time.Now().Add(-window).Format(time.RFC3339)
	now := time.Now()

	commits, err := c.listCommits(ctx, owner, repo, since)
	if err != nil {
		return models.ChangeSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	runs, err := c.listWorkflowRuns(ctx, owner, repo)
	if err != nil {
		return models.ChangeSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	if len(commits) == 0 && len(runs) == 0 {
		return models.ChangeSlot{Status: models.SlotEmpty, FetchedAt: now}
	}
	return models.ChangeSlot{Status: models.SlotOK, Commits: commits, Runs: runs, FetchedAt: now}
}

func (c *GitHubClient) listCommits(ctx context.Context, owner, repo, since string) ([]models.ChangeCommit, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/commits?since=%s", owner, repo, since)
	var raw []githubCommit
	if err := c.getJSON(ctx, apiURL, &raw); err != nil {
		return nil, err
	}

	out := make([]models.ChangeCommit, 0, len(raw))
	for _, rc := range raw {
		out = append(out, models.ChangeCommit{
			SHA:       rc.SHA,
			Author:    rc.Commit.Author.Name,
			Message:   rc.Commit.Message,
			Timestamp: rc.Commit.Author.Date,
		})
	}
	return out, nil
}

func (c *GitHubClient) listWorkflowRuns(ctx context.Context, owner, repo string) ([]models.WorkflowRun, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/actions/runs?per_page=20", owner, repo)
	var raw githubWorkflowRunsResponse
	if err := c.getJSON(ctx, apiURL, &raw); err != nil {
		return nil, err
	}

	out := make([]models.WorkflowRun, 0, len(raw.WorkflowRuns))
	for _, r := range raw.WorkflowRuns {
		out = append(out, models.WorkflowRun{ID: r.ID, Name: r.Name, Conclusion: r.Conclusion, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

// GetWorkflowLogs fetches the redirect-target log archive URL for a run;
// Tarka does not unpack the zip archive itself, it records the reference
// for the rendered report and any follow-up chat query.
func (c *GitHubClient) GetWorkflowLogs(ctx context.Context, owner, repo string, runID int64) (string, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/actions/runs/%d/logs", owner, repo, runID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub returned HTTP %d for workflow run %d logs", resp.StatusCode, runID)
	}
	return resp.Request.URL.String(), nil
}

func (c *GitHubClient) getJSON(ctx context.Context, apiURL string, out any) error {
	if cached, ok := c.cache.get(apiURL); ok {
		return json.Unmarshal([]byte(cached), out)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned HTTP %d for %s", resp.StatusCode, apiURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	c.cache.set(apiURL, string(body))
	return json.Unmarshal(body, out)
}

func (c *GitHubClient) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
