// Package server exposes conversions over HTTP: a client uploads a GeoJSON
// file, polls the job status and downloads the resulting GeoPackage.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures the service.
type Options struct {
	WorkDir           string
	Charset           string
	SRID              int
	Workers           int
	DateNameMarker    string
	PathPrefix        string
	MaxUploadBytes    int64
	CacheTTL          time.Duration
	RequestsPerMinute int
	AllowedOrigins    []string
}

func (o *Options) applyDefaults() {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 100 << 20
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = 60
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	o.PathPrefix = "/" + strings.Trim(o.PathPrefix, "/")
}

// Server is the conversion HTTP service.
type Server struct {
	opts    Options
	jobs    *JobStore
	limiter *ipLimiter
	router  *chi.Mux
	log     *zap.Logger

	// ctx bounds background conversions; cancel stops them on Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards closed and every wg.Add.
	mu     sync.Mutex
	closed bool
}

// New creates the service and its work directory.
func New(opts Options) (*Server, error) {
	opts.applyDefaults()
	if opts.WorkDir == "" {
		return nil, eris.New("server: work dir is required")
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "server: create work dir")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:    opts,
		jobs:    NewJobStore(opts.CacheTTL),
		limiter: newIPLimiter(opts.RequestsPerMinute),
		router:  chi.NewRouter(),
		log:     zap.L().With(zap.String("component", "server")),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Jobs exposes the job store.
func (s *Server) Jobs() *JobStore {
	return s.jobs
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route(s.opts.PathPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.With(s.limiter.middleware).Post("/upload", s.handleUpload)
		r.Get("/status/{uuid}", s.handleStatus)
		r.Get("/download/{uuid}", s.handleDownload)
	})
}

// requestLogger logs each request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("ip", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully and waits for running conversions.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      3 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.Int("port", port), zap.String("prefix", s.opts.PathPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server: listen")
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return err
		}
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return eris.Wrap(err, "server: shutdown")
}

// Close cancels running conversions and waits for them to clean up.
// Uploads received afterwards are refused.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// track registers one background conversion. It reports false once Close
// has started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}
