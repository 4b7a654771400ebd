// Package demo is a small merchant web application that takes card
// payments through the gateway client.
package demo

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/journal"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"
)

// App is the main application, it contains all the components of the demo
// merchant and is responsible for starting and stopping them.
type App struct {
	srv     *http.Server
	wg      *sync.WaitGroup
	Addr    string
	logger  *slog.Logger
	config  *Config
	gateway *gateway.Client
	db      *sql.DB
}

func NewApp(logger *slog.Logger, config *Config, gw *gateway.Client) *App {
	logger = logger.With(slog.String("app", "demo"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:      &sync.WaitGroup{},
		logger:  logger,
		config:  config,
		gateway: gw,
	}
}

// Router builds the HTTP routes around an existing journal.
func (a *App) Router(j *journal.Journal, returnURL string) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(NewStructuredLogger(a.logger))
	router.Use(middleware.Recoverer)

	service := NewService(a.logger, a.gateway, j, returnURL, a.config.OrderNoLength, a.config.ReturnMaxAge)
	NewAPI(service).AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := j.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return router
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	j, err := a.openJournal()
	if err != nil {
		return err
	}

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}
	a.Addr = l.Addr().String()

	returnURL := a.config.ReturnURL
	if returnURL == "" {
		returnURL = "http://" + a.Addr + "/payments/return"
	}

	a.srv = &http.Server{
		Handler:           a.Router(j, returnURL),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr), slog.String("gateway", a.gateway.BaseURL()))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) openJournal() (*journal.Journal, error) {
	dsn := strings.TrimSpace(a.config.DBDSN)
	if dsn == "" {
		a.logger.Info("using in-memory journal")
		return journal.New(), nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	j := journal.NewPG(db)
	if err := j.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	a.db = db
	return j, nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.srv != nil {
		a.srv.Shutdown(context.Background())
	}

	a.wg.Wait()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("closing database", "err", err)
		}
	}

	a.logger.Info("app stopped")
}
