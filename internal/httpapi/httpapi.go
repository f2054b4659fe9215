// Package httpapi is the HTTP transport layer (§6): one stdlib ServeMux
// wired to the chat, approval, execution, and retrieval services, mapping
// typed localflowerr errors onto the fixed error envelope and status table.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/localflow/internal/approval"
	"github.com/haasonsaas/localflow/internal/chat"
	"github.com/haasonsaas/localflow/internal/execution"
	"github.com/haasonsaas/localflow/internal/observability"
	"github.com/haasonsaas/localflow/internal/rag"
	"github.com/haasonsaas/localflow/internal/store"
)

var maxRequestBodyBytes int64 = 1 * 1024 * 1024

// Config wires every service handle the transport layer needs. No
// process-wide globals: everything the handlers touch arrives here.
type Config struct {
	Store       store.Store
	Chat        *chat.Service
	Approvals   *approval.Service
	Executions  *execution.Service
	RAG         *rag.Service
	CORSOrigins []string
	Logger      *slog.Logger

	// Metrics and Tracer are both optional (nil in tests and in any
	// deployment that doesn't configure a collector): every call site
	// nil-checks before recording.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// AppName/Env/LLMProvider feed the /health echo.
	AppName     string
	Env         string
	LLMProvider string

	ServerStartTime time.Time
}

// Handler is the main HTTP entrypoint.
type Handler struct {
	cfg *Config
	mux *http.ServeMux
}

// NewHandler builds the Handler and registers every route.
func NewHandler(cfg *Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServerStartTime.IsZero() {
		cfg.ServerStartTime = time.Now()
	}
	h := &Handler{cfg: cfg, mux: http.NewServeMux()}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/v1/health", h.handleHealth)

	h.mux.HandleFunc("/v1/chat", h.handleChat)

	h.mux.HandleFunc("/v1/drafts/", h.handleDraftsSubroute)

	h.mux.HandleFunc("/v1/executions", h.handleCreateExecution)

	h.mux.HandleFunc("/v1/conversations", h.handleConversations)
	h.mux.HandleFunc("/v1/conversations/", h.handleConversationSubroute)

	h.mux.HandleFunc("/v1/rag/permissions", h.handleRAGPermissions)
	h.mux.HandleFunc("/v1/rag/permissions/grant", h.handleRAGPermissionsGrant)
	h.mux.HandleFunc("/v1/rag/permissions/revoke", h.handleRAGPermissionsRevoke)
	h.mux.HandleFunc("/v1/rag/permissions/set", h.handleRAGPermissionsSet)
	h.mux.HandleFunc("/v1/rag/drives", h.handleRAGDrives)
	h.mux.HandleFunc("/v1/rag/list_dirs", h.handleRAGListDirs)
	h.mux.HandleFunc("/v1/rag/status", h.handleRAGStatus)
	h.mux.HandleFunc("/v1/rag/index", h.handleRAGIndex)
	h.mux.HandleFunc("/v1/rag/search", h.handleRAGSearch)
	h.mux.HandleFunc("/v1/rag/find_files", h.handleRAGFindFiles)

	h.mux.Handle("/metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount returns the handler wrapped with the correlation-id, CORS (only when
// origins are configured), metrics, and logging middleware, in that order
// (outermost first).
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h
	handler = loggingMiddleware(h.cfg.Logger)(handler)
	handler = metricsMiddleware(h.cfg.Metrics)(handler)
	if len(h.cfg.CORSOrigins) > 0 {
		handler = corsMiddleware(h.cfg.CORSOrigins)(handler)
	}
	handler = correlationIDMiddleware(handler)
	return handler
}
