package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/logparser"
	"github.com/tarkyaio/tarka/pkg/models"
)

// backendLoki and backendVictoriaLogs are the two supported log backends,
// each with its own query language, time encoding, and wire format. Neither
// is a strict superset of the other — VictoriaLogs does not serve Loki's
// `/loki/api/v1/query_range` path — so LogsClient branches request
// construction and response parsing per backend rather than assuming one
// HTTP surface fits both.
const (
	backendLoki         = "loki"
	backendVictoriaLogs = "victorialogs"
)

// LogsClient implements LogsProvider over either a Loki or VictoriaLogs
// query endpoint, selected by backend ("loki", "victorialogs", or "auto" to
// sniff it from baseURL).
type LogsClient struct {
	baseURL    string
	backend    string
	httpClient *http.Client
}

// NewLogsClient builds a client against baseURL, querying it the way
// backend (loki|victorialogs|auto) expects. "auto" sniffs the backend from
// baseURL: VictoriaLogs deployments conventionally listen on port 9428 or
// are addressed by a hostname containing "victorialogs"/"vlogs"; anything
// else defaults to Loki, the more common of the two in this fleet.
func NewLogsClient(baseURL, backend string) *LogsClient {
	resolved := backend
	if resolved == "" || resolved == "auto" {
		resolved = detectBackend(baseURL)
	}
	return &LogsClient{
		baseURL:    baseURL,
		backend:    resolved,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func detectBackend(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return backendLoki
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, "victorialogs") || strings.Contains(host, "vlogs") || u.Port() == "9428" {
		return backendVictoriaLogs
	}
	return backendLoki
}

type lokiQueryResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"` // [unixNanoTimestamp, line]
		} `json:"result"`
	} `json:"data"`
}

// victoriaLogsLine is one line of VictoriaLogs' newline-delimited JSON
// response from /select/logsql/query — every log field is present in the
// object, but FetchLogs only needs the message and timestamp.
type victoriaLogsLine struct {
	Time string `json:"_time"`
	Msg  string `json:"_msg"`
}

// FetchLogs queries the identity's namespace/pod logs over window and runs
// them through the deterministic log parser. A pod with no retained logs
// (TTL-deleted, log rotation) reports SlotEmpty with zero raw lines; a
// query failure reports SlotUnavailable.
func (c *LogsClient) FetchLogs(ctx context.Context, identity models.Identity, window time.Duration) models.LogsSlot {
	if identity.Status != models.IdentityOK {
		return models.LogsSlot{Status: models.SlotUnavailable, Reason: "identity not resolved"}
	}
	return c.query(ctx, identity.Namespace, exactPodSelector(identity.Name), window)
}

// FetchLogsByPrefix is the historical fallback used once the live pod is
// gone: it regex-matches any pod name starting with podPrefix, across
// window, instead of an exact pod label.
func (c *LogsClient) FetchLogsByPrefix(ctx context.Context, namespace, podPrefix string, window time.Duration) models.LogsSlot {
	return c.query(ctx, namespace, prefixPodSelector(podPrefix), window)
}

// podSelector carries both query languages' way of expressing a pod match,
// built once per call so query() stays backend-agnostic.
type podSelector struct {
	lokiMatcher string // e.g. `pod="x"` or `pod=~"x.*"`
	vlogsFilter string // e.g. `pod:"x"` or `pod:~"^x.*"`
}

func exactPodSelector(pod string) podSelector {
	return podSelector{
		lokiMatcher: fmt.Sprintf("pod=%q", pod),
		vlogsFilter: fmt.Sprintf("pod:%q", pod),
	}
}

func prefixPodSelector(prefix string) podSelector {
	return podSelector{
		lokiMatcher: fmt.Sprintf(`pod=~"%s.*"`, regexpQuoteMeta(prefix)),
		vlogsFilter: fmt.Sprintf(`pod:~"^%s.*"`, regexpQuoteMeta(prefix)),
	}
}

// regexpQuoteMeta escapes the handful of regex metacharacters Kubernetes
// pod names could plausibly contain (none, in practice — pod names are
// DNS-1123 labels — but a defensive escape costs nothing and both Loki's
// and VictoriaLogs' pattern matching are full regex, not just globs).
func regexpQuoteMeta(s string) string {
	r := strings.NewReplacer(".", `\.`, "+", `\+`, "*", `\*`, "?", `\?`, "(", `\(`, ")", `\)`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

func (c *LogsClient) query(ctx context.Context, namespace string, sel podSelector, window time.Duration) models.LogsSlot {
	now := time.Now()
	start := now.Add(-window)

	var reqURL string
	switch c.backend {
	case backendVictoriaLogs:
		query := fmt.Sprintf(`namespace:%q AND %s`, namespace, sel.vlogsFilter)
		reqURL = fmt.Sprintf("%s/select/logsql/query?%s", c.baseURL, url.Values{
			"query": {query},
			"start": {start.UTC().Format(time.RFC3339)},
			"end":   {now.UTC().Format(time.RFC3339)},
			"limit": {"5000"},
		}.Encode())
	default: // backendLoki
		query := fmt.Sprintf(`{namespace=%q, %s}`, namespace, sel.lokiMatcher)
		reqURL = fmt.Sprintf("%s/loki/api/v1/query_range?%s", c.baseURL, url.Values{
			"query":     {query},
			"start":     {strconv.FormatInt(start.UnixNano(), 10)},
			"end":       {strconv.FormatInt(now.UnixNano(), 10)},
			"limit":     {"5000"},
			"direction": {"forward"},
		}.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.LogsSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.LogsSlot{Status: models.SlotUnavailable, Reason: classifyTransportError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.LogsSlot{Status: models.SlotUnavailable, Reason: classifyHTTPStatus(resp.StatusCode)}
	}

	var lines []string
	switch c.backend {
	case backendVictoriaLogs:
		lines, err = parseVictoriaLogsLines(resp.Body)
	default:
		lines, err = parseLokiLines(resp.Body)
	}
	if err != nil {
		return models.LogsSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	if len(lines) == 0 {
		return models.LogsSlot{Status: models.SlotEmpty, FetchedAt: now}
	}

	patterns := logparser.Parse(lines)
	return models.LogsSlot{
		Status:         models.SlotOK,
		RawLineCount:   len(lines),
		ParsedPatterns: patterns,
		FetchedAt:      now,
	}
}

func parseLokiLines(body io.Reader) ([]string, error) {
	var parsed lokiQueryResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, err
	}
	var lines []string
	for _, stream := range parsed.Data.Result {
		for _, v := range stream.Values {
			lines = append(lines, v[1])
		}
	}
	return lines, nil
}

func parseVictoriaLogsLines(body io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l victoriaLogsLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, err
		}
		lines = append(lines, l.Msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// classifyTransportError maps a client.Do failure (network error, context
// deadline) to the reason tokens spec.md §7 names, instead of leaking the
// raw Go error string into the report.
func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return err.Error()
}

// classifyHTTPStatus maps a non-200 response to spec.md §7's reason
// tokens: `forbidden`, `not_found`, or `http_error:<code>` for anything
// else (rate limiting, backend-side failures).
func classifyHTTPStatus(code int) string {
	switch code {
	case http.StatusForbidden, http.StatusUnauthorized:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("http_error:%d", code)
	}
}
