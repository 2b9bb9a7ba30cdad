// Command gateway runs the kirogate Anthropic-compatible HTTP gateway.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirogate/kirogate/internal/admin"
	"github.com/kirogate/kirogate/internal/config"
	"github.com/kirogate/kirogate/internal/credentials"
	"github.com/kirogate/kirogate/internal/gatewayhttp"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	shutdownTelemetry := setupTelemetry(cfg)
	defer shutdownTelemetry()

	// Packages that cache their tracer at construction time (Store, Client,
	// admin.Service, gatewayhttp.Server) must be built after setupTelemetry
	// so they pick up a real TracerProvider when one was installed.
	store := credentials.New(nil)
	client := kiro.New(cfg.UpstreamBaseURL, store)
	store.SetUpstreamAuth(client)

	adminSvc := admin.New(store)

	if cfg.CredentialsFile != "" {
		tokens, err := config.LoadCredentialTokens(cfg.CredentialsFile)
		if err != nil {
			log.Fatalf("loading credentials file: %v", err)
		}
		summary, err := adminSvc.BatchImport(context.Background(), tokens, true)
		if err != nil {
			log.Fatalf("importing credentials: %v", err)
		}
		log.Printf("credentials loaded: imported=%d failed=%d skipped=%d", summary.Imported, summary.Failed, summary.Skipped)
	}

	srv := gatewayhttp.New(store, client, adminSvc, cfg.AdminKey)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("kirogate listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// setupTelemetry installs a batching OTLP/HTTP span exporter and registers
// it as the global TracerProvider when cfg.OtelExporterEndpoint is set;
// otherwise telemetry stays off and every tracer call site stays a no-op.
// The returned func flushes and shuts the provider down; call it on exit.
func setupTelemetry(cfg config.Config) func() {
	if cfg.OtelExporterEndpoint == "" {
		return func() {}
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OtelExporterEndpoint)}
	if cfg.OtelInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		log.Printf("otel exporter setup failed, telemetry stays disabled: %v", err)
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	telemetry.SetEnabledDefault(true)
	log.Printf("tracing enabled, exporting to %s", cfg.OtelExporterEndpoint)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}
}
