// Package http exposes the sidecar's stores over a JSON API.
package http

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/pgclaw/internal/service"
)

// NewHandler builds the full route table over the service state and wraps
// it with the tracing middleware.
func NewHandler(state *service.State) http.Handler {
	token := state.Settings.ServiceToken
	mux := http.NewServeMux()
	NewAdminHandler(state, token).RegisterRoutes(mux)
	NewMemoryHandler(state.Memory, token).RegisterRoutes(mux)
	NewSessionsHandler(state.Sessions, token).RegisterRoutes(mux)
	NewTranscriptsHandler(state.Transcripts, token).RegisterRoutes(mux)
	return traceMiddleware(mux)
}

// NewServer returns an http.Server bound to the configured port.
func NewServer(state *service.State) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", state.Settings.ServicePort),
		Handler: NewHandler(state),
	}
}

// traceMiddleware opens one span per request, named by method and route
// pattern. With no tracer provider configured this is a no-op.
func traceMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("pgclaw/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
