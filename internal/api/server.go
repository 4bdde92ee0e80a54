package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github/chapool/go-hardware-signer/internal/config"
	"github/chapool/go-hardware-signer/internal/hardware/registry"
)

type Router struct {
	Routes        []*echo.Route
	Root          *echo.Group
	Management    *echo.Group
	APIV1Hardware *echo.Group
}

// Server is the central struct keeping all the dependencies
type Server struct {
	// initialized by router.Init
	Echo   *echo.Echo
	Router *Router

	Config  config.Server
	Drivers *registry.Set
}

func NewServer(config config.Server, drivers *registry.Set) *Server {
	return &Server{
		Config:  config,
		Drivers: drivers,
	}
}

func (s *Server) Ready() bool {
	if s.Echo == nil || s.Router == nil {
		log.Debug().Msg("Server is not fully initialized")
		return false
	}
	if s.Drivers == nil || len(s.Drivers.Variants()) == 0 {
		log.Debug().Msg("No hardware drivers registered")
		return false
	}

	return true
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Echo.Start(s.Config.Echo.ListenAddress); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.Drivers != nil {
		log.Debug().Msg("Releasing hardware driver sessions")

		if err := s.Drivers.CloseAll(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to release hardware driver sessions")
			errs = append(errs, err)
		}
	}

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")

		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	return errs
}
