package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"messagely/internal/auth"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger *zap.SugaredLogger
	cfg    *config
	h      *handler
}

// NewServer wires the handler with the provided store and auth services and
// applies provided options to the underlying http.Server
func NewServer(logger *zap.SugaredLogger, store Store, tokens *auth.TokenService, hasher auth.PasswordHasher, opts ...Option) (*Server, error) {
	h := &handler{
		logger:   logger,
		store:    store,
		resolver: auth.NewResolver(tokens),
		tokens:   tokens,
		hasher:   hasher,
		parsers: parsers{
			loginPool:         fastjson.ParserPool{},
			registerPool:      fastjson.ParserPool{},
			createMessagePool: fastjson.ParserPool{},
		},
	}

	mux := http.NewServeMux()
	mux.Handle("POST /login", enforcePostJson(http.HandlerFunc(h.login)))
	mux.Handle("POST /register", enforcePostJson(http.HandlerFunc(h.register)))
	mux.Handle("GET /users", http.HandlerFunc(h.allUsers))
	mux.Handle("GET /users/{username}", http.HandlerFunc(h.userByUsername))
	mux.Handle("GET /users/{username}/to", http.HandlerFunc(h.messagesTo))
	mux.Handle("GET /users/{username}/from", http.HandlerFunc(h.messagesFrom))
	mux.Handle("GET /messages/{id}", http.HandlerFunc(h.messageByID))
	mux.Handle("POST /messages", enforcePostJson(http.HandlerFunc(h.createMessage)))
	mux.Handle("POST /messages/{id}/read", http.HandlerFunc(h.markMessageRead))

	// identity resolution runs before any handler, request id assignment before that
	root := log(authenticate(mux, h.resolver), logger.Desugar())

	cfg := &config{
		httpServer: &http.Server{
			Addr:    "0.0.0.0:9000",
			Handler: root,
		},
	}

	for _, opt := range opts {
		opt.apply(cfg)
	}

	return &Server{
		logger: logger,
		cfg:    cfg,
		h:      h,
	}, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.cfg.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.cfg.httpServer.Addr)
	if err := s.cfg.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.cfg.afterShutdown {
		f()
	}

	return nil
}
