// Tarka is an alert-triage service for Kubernetes/Prometheus ecosystems: it
// turns a firing Alertmanager alert into a deterministic, evidence-backed
// investigation report. This binary exposes four subcommands: serve-webhook
// (the ingestion HTTP server), run-worker (the durable-queue consumer that
// executes the pipeline), investigate (run a single alert through the
// pipeline synchronously, for local debugging), and list-alerts (browse the
// relational index of past cases).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tarkyaio/tarka/pkg/artifact"
	"github.com/tarkyaio/tarka/pkg/chat"
	"github.com/tarkyaio/tarka/pkg/collectors"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/database"
	"github.com/tarkyaio/tarka/pkg/ingestion"
	"github.com/tarkyaio/tarka/pkg/llm"
	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/pipeline"
	"github.com/tarkyaio/tarka/pkg/providers"
	"github.com/tarkyaio/tarka/pkg/queue"
	"github.com/tarkyaio/tarka/pkg/redact"
	"github.com/tarkyaio/tarka/pkg/services"
	"github.com/tarkyaio/tarka/pkg/version"
)

// Exit codes, per spec.md §6: 0 success, 2 usage, 3 provider-unavailable, 4 pipeline-fatal.
const (
	exitOK              = 0
	exitUsage           = 2
	exitProviderUnavail = 3
	exitPipelineFatal   = 4
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	var err error
	switch os.Args[1] {
	case "serve-webhook":
		err = runServeWebhook(os.Args[2:])
	case "run-worker":
		err = runWorker(os.Args[2:])
	case "investigate":
		err = runInvestigate(os.Args[2:])
	case "list-alerts":
		err = runListAlerts(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Println(version.Full())
		os.Exit(exitOK)
	case "-h", "--help", "help":
		usage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "tarka: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(exitUsage)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tarka: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Tarka - alert-triage service for Kubernetes/Prometheus ecosystems

Usage:
  tarka serve-webhook              run the Alertmanager webhook ingestion server
  tarka run-worker                 run the durable-queue worker pool
  tarka investigate --alert N | --fingerprint FP [--time-window 1h] [--llm] [--dump-json PATH]
  tarka list-alerts [--family F] [--classification C] [--limit N]`)
}

// providerUnavailableError marks a failure as exit code 3 rather than the
// generic pipeline-fatal 4 — a misconfigured or unreachable dependency the
// operator can fix without touching the pipeline itself.
type providerUnavailableError struct{ err error }

func (e *providerUnavailableError) Error() string { return e.err.Error() }
func (e *providerUnavailableError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var perr *providerUnavailableError
	if errors.As(err, &perr) {
		return exitProviderUnavail
	}
	return exitPipelineFatal
}

// app bundles everything every subcommand needs once configuration and
// storage are wired up: the pipeline, the durable queue, the relational
// index, and the artifact store.
type app struct {
	cfg       *config.Config
	dbClient  *database.Client
	cases     *services.CaseService
	chat      *services.ChatService
	allowlist ingestion.Allowlist
	k8s       providers.K8sProvider
	queueStore *queue.Store
	pipeline  *pipeline.Pipeline
	artifact  *artifact.Store // nil when S3_BUCKET is unset
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, &providerUnavailableError{fmt.Errorf("connect database: %w", err)}
	}

	cases := services.NewCaseService(dbClient.DB())
	chat := services.NewChatService(dbClient.DB())

	collSet, err := buildCollectors(ctx, cfg)
	if err != nil {
		slog.Warn("tarka: some evidence providers are disabled", "error", err)
	}

	var enricher llm.Enricher
	if cfg.LLMEnabled {
		client, ok := llm.NewClient(llm.Config{
			Provider:    cfg.LLMProvider,
			APIKeyEnv:   cfg.LLMAPIKeyEnv,
			Model:       cfg.LLMModel,
			RedactTier:  cfg.LLMRedactInfrastructure,
			IncludeLogs: cfg.LLMIncludeLogs,
		}, redact.NewService())
		if ok {
			enricher = client
		}
	}

	p := pipeline.New(collSet, cases.History, enricher)

	var store *artifact.Store
	if cfg.S3Bucket != "" {
		store, err = artifact.NewStore(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3EndpointURL, cfg.Retention.DedupCacheTTL)
		if err != nil {
			return nil, &providerUnavailableError{fmt.Errorf("init artifact store: %w", err)}
		}
	} else {
		slog.Warn("tarka: S3_BUCKET not set, investigations will not be persisted to object storage")
	}

	return &app{
		cfg:        cfg,
		dbClient:   dbClient,
		cases:      cases,
		chat:       chat,
		allowlist:  ingestion.NewAllowlist(cfg.AlertnameAllowlist),
		k8s:        collSet.K8s,
		queueStore: queue.NewStore(dbClient.DB()),
		pipeline:   p,
		artifact:   store,
	}, nil
}

func (a *app) close() {
	if a.dbClient != nil {
		_ = a.dbClient.Close()
	}
}

// buildCollectors constructs the provider set from cfg, tolerating any
// single provider's construction failure — a missing PROMETHEUS_URL, an
// unreachable kubeconfig, or AWS/GitHub evidence simply being disabled all
// degrade their respective evidence slot to unavailable rather than
// preventing the service from starting at all.
func buildCollectors(ctx context.Context, cfg *config.Config) (*collectors.Set, error) {
	set := &collectors.Set{}
	var errs []string

	if cfg.PrometheusURL != "" {
		if m, err := providers.NewPrometheusProvider(cfg.PrometheusURL); err == nil {
			set.Metrics = m
		} else {
			errs = append(errs, fmt.Sprintf("metrics: %v", err))
		}
	}

	if k8sClient, err := providers.NewK8sClient(cfg.KubeconfigPath); err == nil {
		set.K8s = k8sClient
	} else {
		errs = append(errs, fmt.Sprintf("k8s: %v", err))
	}

	if cfg.LogsURL != "" {
		set.Logs = providers.NewLogsClient(cfg.LogsURL, cfg.LogsBackend)
	}

	if cfg.AWSEvidenceEnabled {
		if awsClient, err := providers.NewAWSClient(ctx, cfg.AWSCloudTrailMaxEvents); err == nil {
			set.AWS = awsClient
		} else {
			errs = append(errs, fmt.Sprintf("aws: %v", err))
		}
	}

	if cfg.GitHubEvidenceEnabled {
		set.Change = providers.NewGitHubClient(os.Getenv(cfg.GitHubTokenEnv))
	}

	if len(errs) > 0 {
		return set, fmt.Errorf("%v", errs)
	}
	return set, nil
}

// jobExecutor adapts app's pipeline/artifact/index into queue.Executor.
type jobExecutor struct {
	a *app
}

func (e *jobExecutor) Execute(ctx context.Context, job models.InvestigationJob) error {
	inv, err := e.a.pipeline.Run(ctx, job.ID, pipeline.Input{
		Alert:     job.Alert,
		Identity:  job.Identity,
		Family:    job.Family,
		Window:    e.a.cfg.TimeWindow,
		EnableLLM: e.a.cfg.LLMEnabled,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	caseID, err := e.a.cases.EnsureCase(ctx, inv)
	if err != nil {
		return fmt.Errorf("ensure case: %w", err)
	}

	if e.a.artifact != nil {
		if err := e.a.artifact.Put(ctx, caseID, inv); err != nil {
			slog.Error("tarka: artifact write failed", "job_id", job.ID, "error", err)
		}
	}

	if _, err := e.a.cases.PersistRun(ctx, caseID, inv); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}

	slog.Info("tarka: investigation complete",
		"job_id", job.ID, "case_id", caseID, "family", job.Family,
		"classification", inv.Analysis.Classification, "impact", inv.Analysis.Impact)
	return nil
}

// --- serve-webhook ---

func runServeWebhook(args []string) error {
	fs := flag.NewFlagSet("serve-webhook", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var redisClient *redis.Client
	if a.cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr, Password: a.cfg.Redis.Password, DB: a.cfg.Redis.DB})
	}
	gate := ingestion.NewFreshnessGate(redisClient, a.cases.LastRunTime)

	handler := &ingestion.Handler{
		Allowlist: a.allowlist,
		K8s:       a.k8s,
		Gate:      gate,
		Queue:     a.queueStore,
		Stats:     &ingestion.Stats{},
	}
	chatHandler := &chat.Handler{Chat: a.chat, Cases: a.cases, Hub: chat.NewHub()}

	gin.SetMode(getEnvOrDefault("GIN_MODE", "release"))
	r := gin.New()
	r.Use(gin.Recovery())
	handler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	srv := &http.Server{Addr: *addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("tarka: ingestion server listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("tarka: shutting down ingestion server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// --- run-worker ---

func runWorker(args []string) error {
	fs := flag.NewFlagSet("run-worker", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	pool := queue.NewWorkerPool(a.queueStore, a.dbClient.DB(), a.cfg.Queue, &jobExecutor{a: a})
	pool.Start(ctx)
	go a.runRetentionLoop(ctx)

	<-ctx.Done()
	slog.Info("tarka: shutdown signal received, draining worker pool")
	pool.Stop()
	return nil
}

// runRetentionLoop periodically soft-deletes cases past the configured
// retention window. It runs alongside the worker pool rather than as its
// own subcommand since both are long-lived background processes a single
// `run-worker` replica can own.
func (a *app) runRetentionLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Retention.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.cases.SoftDeleteOlderThan(ctx, a.cfg.Retention.CaseRetentionDays)
			if err != nil {
				slog.Error("tarka: retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("tarka: retention sweep soft-deleted cases", "count", n)
			}
		}
	}
}

// --- investigate ---

func runInvestigate(args []string) error {
	fs := flag.NewFlagSet("investigate", flag.ContinueOnError)
	fingerprint := fs.String("fingerprint", "", "alert fingerprint to investigate")
	alertName := fs.String("alert", "", "alertname to investigate (with --namespace/--pod or --node)")
	namespace := fs.String("namespace", "", "namespace label")
	pod := fs.String("pod", "", "pod label")
	node := fs.String("node", "", "node label")
	timeWindow := fs.String("time-window", "1h", "evidence collection window")
	enableLLM := fs.Bool("llm", false, "enable LLM enrichment for this run")
	dumpJSON := fs.String("dump-json", "", "write the structured JSON report to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fingerprint == "" && *alertName == "" {
		fs.Usage()
		return fmt.Errorf("--alert or --fingerprint is required")
	}

	window, err := time.ParseDuration(*timeWindow)
	if err != nil || window <= 0 {
		return fmt.Errorf("invalid --time-window %q", *timeWindow)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	labels := map[string]string{}
	if *namespace != "" {
		labels["namespace"] = *namespace
	}
	if *pod != "" {
		labels["pod"] = *pod
	}
	if *node != "" {
		labels["node"] = *node
	}

	alert := models.AlertInstance{
		Fingerprint: *fingerprint,
		AlertName:   *alertName,
		Status:      "firing",
		Labels:      labels,
		StartsAt:    time.Now(),
		ReceivedAt:  time.Now(),
	}

	identity := ingestion.ResolveIdentity(ctx, *alertName, labels, a.k8s)
	family := models.ClassifyFamily(*alertName, identity.Kind)

	inv, err := a.pipeline.Run(ctx, uuid.NewString(), pipeline.Input{
		Alert:     alert,
		Identity:  identity,
		Family:    family,
		Window:    window,
		EnableLLM: *enableLLM,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	fmt.Println(inv.ReportMarkdown)

	if *dumpJSON != "" {
		if err := os.WriteFile(*dumpJSON, []byte(inv.ReportJSON), 0o644); err != nil {
			return fmt.Errorf("write --dump-json: %w", err)
		}
	}
	return nil
}

// --- list-alerts ---

func runListAlerts(args []string) error {
	fs := flag.NewFlagSet("list-alerts", flag.ContinueOnError)
	family := fs.String("family", "", "filter by family")
	classification := fs.String("classification", "", "filter by classification")
	alertName := fs.String("alert-name", "", "filter by alertname")
	limit := fs.Int("limit", 50, "max results")
	asJSON := fs.Bool("json", false, "print raw JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.cases.ListCases(ctx, models.CaseFilters{
		Family:         *family,
		Classification: *classification,
		AlertName:      *alertName,
		Limit:          *limit,
	})
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("%-36s %-24s %-20s %-14s %-6s %s\n", "CASE ID", "ALERT", "FAMILY", "CLASSIFICATION", "IMPACT", "CREATED")
	for _, c := range resp.Cases {
		fmt.Printf("%-36s %-24s %-20s %-14s %-6d %s\n",
			c.ID, c.AlertName, c.Family, c.Classification, c.Impact, c.CreatedAt.Format(time.RFC3339))
	}
	fmt.Printf("\n%d of %d cases (limit %d, offset %d)\n", len(resp.Cases), resp.TotalCount, resp.Limit, resp.Offset)
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
