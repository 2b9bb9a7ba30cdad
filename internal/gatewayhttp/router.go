// Package gatewayhttp wires the Anthropic-compatible client surface and
// the admin surface onto a chi router, translating between
// internal/gatewayerr and the HTTP/JSON error envelope.
package gatewayhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kirogate/kirogate/internal/admin"
	"github.com/kirogate/kirogate/internal/credentials"
	"github.com/kirogate/kirogate/internal/gatewayerr"
	"github.com/kirogate/kirogate/internal/kiro"
	"github.com/kirogate/kirogate/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Server holds the dependencies every handler needs.
type Server struct {
	store    *credentials.Store
	client   *kiro.Client
	admin    *admin.Service
	adminKey string
	tracer   trace.Tracer
}

// New builds a Server. adminKey gates every /admin/* route.
func New(store *credentials.Store, client *kiro.Client, adminSvc *admin.Service, adminKey string) *Server {
	return &Server{
		store:    store,
		client:   client,
		admin:    adminSvc,
		adminKey: adminKey,
		tracer:   telemetry.GetTracer(telemetry.DefaultSettings()),
	}
}

// Router builds the chi.Mux exposing both surfaces.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "anthropic-version"},
	}))

	// /v1/messages can be a long-lived SSE stream (spec: no overall deadline,
	// the client controls its lifetime), so it sits outside any blanket
	// Timeout middleware; handleMessages applies a bounded context itself
	// only on the non-streaming path.
	r.Post("/v1/messages", s.handleMessages)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))

		r.Get("/v1/models", s.handleListModels)
		r.Post("/v1/messages/count_tokens", s.handleCountTokens)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdminKey)
			r.Get("/credentials", s.handleAdminList)
			r.Post("/credentials", s.handleAdminAdd)
			r.Post("/credentials/batch-import", s.handleAdminBatchImport)
			r.Post("/credentials/{id}/disabled", s.handleAdminSetDisabled)
			r.Post("/credentials/{id}/priority", s.handleAdminSetPriority)
			r.Post("/credentials/{id}/reset", s.handleAdminReset)
			r.Post("/credentials/{id}/refresh", s.handleAdminRefresh)
			r.Get("/credentials/{id}/balance", s.handleAdminBalance)
			r.Delete("/credentials/{id}", s.handleAdminDelete)
		})
	})

	return r
}

func (s *Server) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != s.adminKey {
			writeError(w, gatewayerr.NewAuthenticationError("missing or invalid admin key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
