package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

type Server struct {
	config      *config.AppConfig
	log         *zap.Logger
	httpServer  *http.Server
	authHandler *auth.Handler
}

type Params struct {
	fx.In

	Config         *config.AppConfig
	Logger         *zap.Logger
	AuthHandler    *auth.Handler
	AuthMiddleware *auth.Middleware
}

func NewServer(p Params) *Server {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("POST /auth/login", p.AuthHandler.Login)
	mux.HandleFunc("POST /auth/refresh", p.AuthHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", p.AuthHandler.Logout)
	mux.HandleFunc("GET /.well-known/jwks.json", p.AuthHandler.JWKS)

	// Endpoints requiring a valid access token
	mux.Handle("POST /auth/totp/enroll", p.AuthMiddleware.Authenticate(http.HandlerFunc(p.AuthHandler.EnrollTOTP)))
	mux.Handle("POST /auth/totp/confirm", p.AuthMiddleware.Authenticate(http.HandlerFunc(p.AuthHandler.ConfirmTOTP)))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", p.Config.Server.Host, p.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  p.Config.Server.ReadTimeout,
		WriteTimeout: p.Config.Server.WriteTimeout,
	}

	return &Server{
		config:      p.Config,
		log:         p.Logger,
		httpServer:  httpServer,
		authHandler: p.AuthHandler,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.log.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.Object("config", serverConfigToField(s.config)),
	)

	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

func serverConfigToField(cfg *config.AppConfig) zapcore.ObjectMarshaler {
	return zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("environment", os.Getenv("APP_ENV"))
		enc.AddDuration("access_token_ttl", cfg.Auth.AccessTokenTTL)
		enc.AddDuration("refresh_token_ttl", cfg.Auth.RefreshTokenTTL)
		enc.AddDuration("key_overlap_window", cfg.Keys.OverlapWindow)
		return nil
	})
}

func (s *Server) Stop() {
	s.log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("forced shutdown", zap.Error(err))
		_ = s.httpServer.Close()
	}
}
