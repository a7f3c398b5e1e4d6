package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/contactbook/apiserver/config"
	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/cache"
	"github.com/contactbook/apiserver/internal/db"
	"github.com/contactbook/apiserver/internal/handlers"
	"github.com/contactbook/apiserver/internal/logger"
	mailer "github.com/contactbook/apiserver/internal/mail"
	"github.com/contactbook/apiserver/internal/mq"
	"github.com/contactbook/apiserver/internal/ratelimit"
	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/internal/sessioncache"
	"github.com/contactbook/apiserver/internal/storage"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPort       = 8000
	defaultCORSMaxAge = 300
	requestTimeout    = 60 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 75 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	db      *sql.DB
	redis   *redis.Client
	queue   *mq.MQ
	storage *storage.Storage
	mail    mailer.Dispatcher
}

// Deps are the application services the router serves.
type Deps struct {
	Users         *services.UserService
	Contacts      *services.ContactService
	Authenticator handlers.Authenticator
	Limiter       handlers.Limiter
	Health        map[string]handlers.Pinger
	CORSOrigins   []string
	Logger        *slog.Logger
}

// New opens every backing connection, builds the services and registers
// routes. The message queue and object storage are optional.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{logger: log}
	if err := s.open(ctx, cfg); err != nil {
		s.closeConnections()
		return nil, err
	}

	userRepo := store.NewUserRepository(s.db)
	contactRepo := store.NewContactRepository(s.db)

	tokens, err := auth.NewTokenService(cfg.JWT)
	if err != nil {
		s.closeConnections()
		return nil, err
	}
	sessions := sessioncache.New(s.redis, cfg.SessionCache.TTL)
	limiter := ratelimit.New(s.redis, ratelimit.Config{
		Limit:  cfg.RateLimit.Requests,
		Window: cfg.RateLimit.Window,
	})

	s.mail = mailer.NewDispatcher(s.queue, cfg.Mail.Queue, mailer.NewSMTPSender(cfg.SMTP), log)

	userDeps := services.UserDeps{
		Repo:       userRepo,
		Tokens:     tokens,
		Sessions:   sessions,
		Dispatcher: s.mail,
		Messages:   mailer.NewBuilder(cfg.Mail),
		Logger:     log,
	}
	if s.storage != nil {
		userDeps.Avatars = s.storage
	}

	s.router = NewRouter(Deps{
		Users:         services.NewUserService(userDeps),
		Contacts:      services.NewContactService(contactRepo),
		Authenticator: auth.NewAuthenticator(tokens, sessions, userRepo, log),
		Limiter:       limiter,
		Health:        map[string]handlers.Pinger{"postgres": s.db, "redis": redisPinger(s.redis)},
		CORSOrigins:   cfg.CORS.AllowedOrigins,
		Logger:        log,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = defaultPort
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s, nil
}

func (s *Server) open(ctx context.Context, cfg config.Config) error {
	var err error
	if s.db, err = db.Open(ctx, cfg.Database); err != nil {
		return err
	}
	if s.redis, err = cache.Open(ctx, cfg.Redis); err != nil {
		return err
	}

	s.queue, err = mq.Open(ctx, cfg.MQ)
	switch {
	case errors.Is(err, mq.ErrDisabled):
		s.logger.InfoContext(ctx, "no message queue configured, sending mail in-process")
	case err != nil:
		return err
	}

	s.storage, err = storage.Open(ctx, cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		s.logger.InfoContext(ctx, "no object storage configured, avatar upload disabled")
	case err != nil:
		return err
	}
	return nil
}

func redisPinger(client redis.UniversalClient) handlers.Pinger {
	return handlers.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// NewRouter builds the HTTP routes around the given services.
func NewRouter(deps Deps) *chi.Mux {
	log := deps.Logger
	requireAuth := handlers.RequireAuth(deps.Authenticator, log)
	limited := handlers.RateLimit(deps.Limiter, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logger.RequestLogger(log),
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           defaultCORSMaxAge,
		}),
	)

	router.Get("/healthz", handlers.Healthz(deps.Health, log))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Users, log)
	})
	router.Route("/api", func(r chi.Router) {
		r.Use(requireAuth)
		r.Route("/contacts", func(r chi.Router) {
			r.Use(limited)
			handlers.ContactRouter(r, deps.Contacts, log)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, deps.Users, limited, log)
		})
		r.With(handlers.RequireRole(types.RoleAdmin)).
			Post("/create-admin", handlers.CreateAdmin(deps.Users, log))
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and pending in-process mail, then
// closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if async, ok := s.mail.(*mailer.AsyncDispatcher); ok {
		async.Wait()
	}
	s.closeConnections()
	return err
}

func (s *Server) closeConnections() {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Warn("close storage", "error", err)
		}
	}
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("close message queue", "error", err)
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
