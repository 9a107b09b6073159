package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/domainkv/apiserver/config"
	"github.com/domainkv/apiserver/internal/db"
	"github.com/domainkv/apiserver/internal/handlers"
	"github.com/domainkv/apiserver/internal/mq"
	"github.com/domainkv/apiserver/internal/services"
	"github.com/domainkv/apiserver/internal/storage"
	"github.com/domainkv/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     mq.Backend
	logger     *slog.Logger
}

// New constructs a Server with its full dependency tree: database,
// repositories, services, optional event broker and snapshot storage,
// and the route tree.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := slog.Default()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	domainRepo := store.NewDomainRepository(dbConn)
	recordRepo := store.NewRecordRepository(dbConn)

	broker, err := mq.NewBackend(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init events backend: %w", err)
	}
	var publisher services.Publisher
	if broker != nil {
		publisher = mq.New(broker)
	}

	snapshotStore, err := storage.NewFromConfig(ctx, cfg.Snapshots)
	if err != nil {
		_ = dbConn.Close()
		closeBroker(broker, logger)
		return nil, fmt.Errorf("init snapshot storage: %w", err)
	}

	userService := services.NewUserService(userRepo, cfg.Auth.BcryptCost)
	domainService := services.NewDomainService(domainRepo)
	accessService := services.NewAccessService(userRepo, domainRepo)
	membershipService := services.NewMembershipService(userRepo)
	recordService := services.NewRecordService(recordRepo, services.NewEventPublisher(publisher, logger))
	exportService := services.NewExportService(recordRepo, snapshotStore)

	if cfg.AdminSeed.Username != "" && cfg.AdminSeed.Password != "" {
		if err := userService.EnsureAdmin(ctx, cfg.AdminSeed.Username, cfg.AdminSeed.Password, []string{"editor"}); err != nil {
			logger.Error("seed admin account", "error", err)
		}
	}

	requireAuth := handlers.RequireAuth(cfg.Auth.JWTSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"},
			AllowCredentials: true,
		}),
	)

	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, userService, cfg.Auth.JWTSecret, requireAuth)
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, userService, domainService, membershipService, exportService, accessService, requireAuth)
	})
	router.Route("/{domain}", func(r chi.Router) {
		handlers.DomainRouter(r, recordService, userService, accessService, requireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	closeBroker(s.broker, s.logger)
	return s.httpServer.Close()
}

func closeBroker(broker mq.Backend, logger *slog.Logger) {
	if broker == nil {
		return
	}
	if err := broker.Close(); err != nil {
		logger.Error("close events backend", "error", err)
	}
}
