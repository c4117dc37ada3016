// Package server provides the HTTP gateway: it parses REST requests,
// compiles them against the loaded schema and runs the statements through
// a database adapter.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
)

// Config holds configuration for the gateway.
type Config struct {
	Addr string
	// Root is the path prefix in front of relation names, e.g. /rest/.
	Root string
	// Schema is the database schema requests resolve against by default.
	Schema string
	// AnonRole is the role of requests without a session.
	AnonRole      string
	SessionSecret string
	MaxRows       int

	// SchemaFile and Dialect are used by Reload.
	SchemaFile  string
	Dialect     string
	LoadOptions []catalog.Option
	// Watch reloads the schema when SchemaFile changes.
	Watch bool

	Adapter adapter.Adapter
	Logger  *slog.Logger
}

// Server is the HTTP gateway.
type Server struct {
	cfg          Config
	cat          atomic.Pointer[catalog.Catalog]
	sessionStore *sessions.CookieStore
	logger       *slog.Logger
}

// New creates a gateway serving cat.
func New(cfg Config, cat *catalog.Catalog) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Root == "" {
		cfg.Root = "/"
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400) // 1 day
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	s := &Server{
		cfg:          cfg,
		sessionStore: sessionStore,
		logger:       cfg.Logger,
	}
	s.cat.Store(cat)
	return s
}

// Catalog returns the schema currently served.
func (s *Server) Catalog() *catalog.Catalog {
	return s.cat.Load()
}

// Reload loads SchemaFile again and swaps it in. In-flight requests keep
// the catalog they started with. A failed load keeps the current one.
func (s *Server) Reload(ctx context.Context) error {
	if s.cfg.SchemaFile == "" {
		return errors.New("no schema file configured")
	}
	cat, err := catalog.LoadFile(ctx, s.cfg.Dialect, s.cfg.SchemaFile, s.cfg.LoadOptions...)
	if err != nil {
		return fmt.Errorf("failed to reload schema: %w", err)
	}
	s.cat.Store(cat)
	s.logger.Info("schema reloaded", slog.String("file", s.cfg.SchemaFile), slog.Int("relations", cat.RelationCount()))
	return nil
}

// Handler returns the gateway routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		requestID,
		s.logRequests,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/_session", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Post("/", s.setSession)
		r.Delete("/", s.clearSession)
	})
	r.HandleFunc(s.cfg.Root+"*", s.handleREST)
	return r
}

// Serve starts the gateway and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting gateway", slog.String("addr", s.cfg.Addr), slog.String("root", s.cfg.Root))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cfg.Watch && s.cfg.SchemaFile != "" {
		eg.Go(func() error {
			return s.watchSchema(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down gateway...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchSchema reloads the catalog when the schema file is written. The
// directory is watched so editors that replace the file are seen too.
func (s *Server) watchSchema(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(s.cfg.SchemaFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		s.logger.Error("failed to watch schema file", slog.Any("error", err))
		<-ctx.Done()
		return nil
	}

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				if err := s.Reload(ctx); err != nil {
					s.logger.Error("reload failed", slog.Any("error", err))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", slog.Any("error", err))
		}
	}
}
