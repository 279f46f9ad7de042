// Package httpapi binds internal/api's transport-agnostic Service to
// a chi router: HTTP method/path routing, Basic Auth, TLS, base-path
// mounting, and IPv6 — the external collaborators spec §1 carves out
// of the core, implemented here so the daemon is runnable end to end.
package httpapi

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/basecrew/taskscheduler/internal/api"
)

// Options configures the HTTP server.
type Options struct {
	Addr         string // host:port
	BasePath     string // URL prefix for the API, default "/"
	PreferIPv6   bool
	Auth         *AuthConfig
	TLS          *tls.Config
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps the bound http.Server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// New builds the router and binds a listener, but does not start
// serving; call Serve.
func New(svc *api.Service, opts Options, logger *slog.Logger) (*Server, error) {
	basePath := normalizeBasePath(opts.BasePath)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	h := &handlers{svc: svc, logger: logger}

	mount := func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.middleware)
		}
		r.Get("/health", h.health)
		r.Get("/accounts", h.listAccounts)
		r.Post("/cron/preview", h.previewCron)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.listTasks)
			r.Post("/", h.createTask)
			r.Post("/batch", h.batch)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", h.getTask)
				r.Put("/", h.updateTask)
				r.Delete("/", h.deleteTask)
				r.Post("/toggle", h.toggleTask)
				r.Post("/run", h.runTask)
				r.Get("/results", h.listResults)
				r.Delete("/results", h.clearResults)
				r.Delete("/results/{resultID}", h.deleteResult)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.listTemplates)
			r.Post("/", h.createTemplate)
			r.Get("/export", h.exportTemplates)
			r.Post("/import", h.importTemplates)

			r.Route("/{templateID}", func(r chi.Router) {
				r.Get("/", h.getTemplate)
				r.Put("/", h.updateTemplate)
				r.Delete("/", h.deleteTemplate)
			})
		})
	}

	if basePath == "/" {
		router.Route("/api", mount)
	} else {
		router.Route(basePath+"/api", mount)
	}

	host := opts.Addr
	if opts.PreferIPv6 {
		// Rebind to the IPv6 wildcard on the same port; an address
		// whose host is already an IPv6 literal is left as-is.
		if h, port, err := net.SplitHostPort(host); err == nil && !strings.Contains(h, ":") {
			host = net.JoinHostPort("::", port)
		}
	}

	listener, err := net.Listen("tcp", host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", host, err)
	}

	httpServer := &http.Server{
		Handler:      router,
		ReadTimeout:  nonZero(opts.ReadTimeout, 15*time.Second),
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    opts.TLS,
	}

	return &Server{httpServer: httpServer, listener: listener, logger: logger}, nil
}

// Serve blocks until the listener is closed.
func (s *Server) Serve() error {
	s.logger.Info("http server listening", "addr", s.listener.Addr().String())
	if s.httpServer.TLSConfig != nil {
		err := s.httpServer.ServeTLS(s.listener, "", "")
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func normalizeBasePath(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = "/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
		})
	}
}

func pathInt64(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	return strconv.ParseInt(raw, 10, 64)
}
