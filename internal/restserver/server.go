// Package restserver exposes any types.Transport over the catalog's HTTP
// protocol. The icecat serve command runs it over the SQLite service.
package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mesh-intelligence/icecat/internal/rest"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

const (
	contentTypeJSON        = "application/json"
	defaultAddr            = ":8181"
	defaultShutdownTimeout = 5 * time.Second
	maxBodyBytes           = 1 << 20
)

// Server serves the catalog protocol for a transport.
type Server struct {
	transport  types.Transport
	logger     *slog.Logger
	addr       string
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a server. An empty addr means ":8181"; a nil logger
// means slog.Default().
func NewServer(transport types.Transport, addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = defaultAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{transport: transport, logger: logger, addr: addr}
}

// Handler returns the router, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route(rest.PathPrefix, func(r chi.Router) {
		r.Get("/namespaces", s.handleListNamespaces)
		r.Post("/namespaces", s.handleCreateNamespace)
		r.Delete("/namespaces/{namespace}", s.handleDropNamespace)

		r.Get("/namespaces/{namespace}/tables", s.handleListTables)
		r.Post("/namespaces/{namespace}/tables", s.handleCreateTable)
		r.Head("/namespaces/{namespace}/tables/{table}", s.handleTableExists)
		r.Get("/namespaces/{namespace}/tables/{table}", s.handleLoadTable)
		r.Post("/namespaces/{namespace}/tables/{table}", s.handleUpdateTable)
		r.Delete("/namespaces/{namespace}/tables/{table}", s.handleDropTable)

		r.Post("/tables/rename", s.handleRenameTable)
	})
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("catalog server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.logger.Info("catalog server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := rest.NewErrorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	s.writeJSON(w, status, body)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode body: %w", types.ErrInvalidRequest, err))
		return false
	}
	return true
}

// pathParam returns an unescaped route parameter. chi routes on RawPath
// when the request path needed escaping, so parameters arrive escaped.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	out, err := url.PathUnescape(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", types.ErrInvalidRequest, key, err)
	}
	return out, nil
}

func namespaceParam(r *http.Request) (types.Namespace, error) {
	raw, err := pathParam(r, "namespace")
	if err != nil {
		return nil, err
	}
	return rest.DecodeNamespace(raw)
}

func tableParams(r *http.Request) (types.Namespace, string, error) {
	ns, err := namespaceParam(r)
	if err != nil {
		return nil, "", err
	}
	name, err := pathParam(r, "table")
	if err != nil {
		return nil, "", err
	}
	if name == "" {
		return nil, "", fmt.Errorf("%w: empty table name", types.ErrMalformedIdentifier)
	}
	return ns, name, nil
}
