// Command gateway runs the Agent Execution Gateway HTTP server, wiring the
// Spec Compiler, Gate Chain, Usage Ledger, Metering Verifier and Audit Log
// into one process, in the style of a runServer entrypoint that wires its
// kernel layers together before serving.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/api"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/audit"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/catalog"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/config"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/ledger"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/metering"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/plan"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/schemaval"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/spec"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("gateway: loading config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	plans, err := plan.Load(cfg.PlanConfigPath)
	if err != nil {
		log.Fatalf("gateway: loading plans: %v", err)
	}

	agentCatalog, err := catalog.Load(cfg.AgentCatalogPath)
	if err != nil {
		log.Fatalf("gateway: loading agent catalog: %v", err)
	}

	registry := spec.DefaultRegistry()
	compiler := spec.NewCompiler(registry)
	cache := spec.NewBundleCache(compiler, 1024)

	schemaDoc, err := compiler.Schema()
	if err != nil {
		log.Fatalf("gateway: emitting spec schema: %v", err)
	}
	schemaValidator, err := schemaval.Compile(schemaDoc)
	if err != nil {
		log.Fatalf("gateway: compiling spec schema: %v", err)
	}

	var usageLedger ledger.Ledger
	if cfg.UsageLedgerStorePath != "" {
		fileLedger, err := ledger.OpenFileLedger(cfg.UsageLedgerStorePath)
		if err != nil {
			log.Fatalf("gateway: opening usage ledger: %v", err)
		}
		usageLedger = fileLedger
	} else {
		usageLedger = ledger.NewMemoryLedger()
	}

	var auditLog audit.Log
	if cfg.AuditLogStorePath != "" {
		fileAudit, err := audit.OpenFileLog(cfg.AuditLogStorePath)
		if err != nil {
			log.Fatalf("gateway: opening audit log: %v", err)
		}
		auditLog = fileAudit
	} else {
		auditLog = audit.NewMemoryLog()
	}

	meteringVerifier := metering.NewVerifier(cfg.MeteringSecret, cfg.MeteringTTL)

	server := &api.Server{
		Config:    cfg,
		Catalog:   agentCatalog,
		Plans:     plans,
		Compiler:  compiler,
		Cache:     cache,
		Ledger:    usageLedger,
		Audit:     auditLog,
		Metering:  meteringVerifier,
		RateLimit: api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		SchemaVal: schemaValidator,
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("gateway: listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway: server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("gateway: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("gateway: graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}
