package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/db"
	"github.com/taskhub/apiserver/internal/handlers"
	"github.com/taskhub/apiserver/internal/mailer"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/notify"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
)

// requestTimeout must stay below writeTimeout.
const (
	requestTimeout = 10 * time.Second
	readTimeout    = 15 * time.Second
	writeTimeout   = 15 * time.Second
	idleTimeout    = 60 * time.Second
)

// Server wraps the HTTP server, router and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sqlx.DB
	queue      *mq.MQ
	objects    *storage.Storage
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

// New wires repositories, services and handlers into a ready Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := mq.NewFromConfig(ctx, cfg.Queue)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objects, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}

	mail := mailer.New(cfg.Mail, cfg.AppURL, logger)
	if !mail.Enabled() {
		logger.Warn("smtp is not configured, verification mail will not be delivered")
	}

	var publisher notify.Publisher
	if queue != nil {
		publisher = queue
		logger.Info("verification mail goes through the queue", "backend", cfg.Queue.Backend, "channel", cfg.Queue.Channel)
	}
	dispatcher := notify.NewDispatcher(mail, publisher, cfg.Queue.Channel, logger)

	var avatars services.AvatarStore
	if objects != nil {
		avatars = objects
		logger.Info("avatar storage enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}

	userService := services.NewUserService(store.NewUserRepository(dbConn), dispatcher, avatars, logger)
	taskService := services.NewTaskService(store.NewTaskRepository(dbConn))

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}),
		middleware.Timeout(requestTimeout),
	)
	handlers.Mount(router,
		handlers.NewAuthHandler(userService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger),
		handlers.NewUserHandler(userService, logger),
		handlers.NewTaskHandler(taskService, logger),
	)

	httpServer := newHTTPServer(cfg.ServerPort, router)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		objects:    objects,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	if port == 0 {
		port = 8080
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight requests and
// pending verification mail, then releases the queue and the pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if waitErr := s.dispatcher.Wait(ctx); waitErr != nil {
		s.logger.Warn("pending verification mail abandoned", "error", waitErr)
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.objects != nil {
		_ = s.objects.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
