// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/poiesic/docquery"
	"github.com/poiesic/docquery/core"
)

// ServiceFactory builds a document service for the given credential and chat
// model. Both may be empty to use the server's defaults. Factories are
// expected to share one session registry across all services they build, so
// a session uploaded with one credential stays reachable from every request.
type ServiceFactory func(apiKey, chatModel string) (*docquery.Service, error)

// Server exposes the document question-answering flow over HTTP.
type Server struct {
	e       *echo.Echo
	factory ServiceFactory
	logger  *slog.Logger

	mu       sync.Mutex
	services map[string]*docquery.Service
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// New creates an HTTP server over the given service factory.
func New(factory ServiceFactory, opts ...Option) (*Server, error) {
	if factory == nil {
		return nil, ErrFactoryRequired
	}

	s := &Server{
		factory:  factory,
		logger:   slog.Default(),
		services: make(map[string]*docquery.Service),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http-server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.HTTPErrorHandler = s.handleError

	api := e.Group("/api")
	api.GET("/health", s.health)
	api.POST("/upload", s.upload)
	api.POST("/query", s.query)
	api.POST("/chat", s.chat)

	s.e = e
	return s, nil
}

// Start listens on addr and serves until Shutdown or a fatal error.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.e.Start(addr)
}

// Shutdown gracefully stops the server and closes all cached services.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.e.Shutdown(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, svc := range s.services {
		if closeErr := svc.Close(); closeErr != nil {
			s.logger.Error("error closing service", "err", closeErr)
		}
		delete(s.services, key)
	}
	return err
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.e
}

// service returns a cached service for the credential and model pair,
// building one through the factory on first use.
func (s *Server) service(apiKey, chatModel string) (*docquery.Service, error) {
	key := apiKey + "\x00" + chatModel

	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[key]; ok {
		return svc, nil
	}

	svc, err := s.factory(apiKey, chatModel)
	if err != nil {
		return nil, err
	}
	s.services[key] = svc
	return svc, nil
}

// handleError maps domain errors onto HTTP statuses and renders the unified
// JSON error body.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		msg = fmt.Sprint(httpErr.Message)
	case errors.Is(err, core.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, core.ErrConfiguration), errors.Is(err, core.ErrEmptyDocument):
		code = http.StatusBadRequest
	case errors.Is(err, core.ErrEmbeddingService), errors.Is(err, core.ErrChatService):
		code = http.StatusBadGateway
	}

	req := c.Request()
	s.logger.Error("request failed", "status", code, "method", req.Method, "path", req.URL.Path, "err", err)
	if !c.Response().Committed {
		if jsonErr := c.JSON(code, map[string]string{"error": msg}); jsonErr != nil {
			s.logger.Error("error writing error response", "err", jsonErr)
		}
	}
}
