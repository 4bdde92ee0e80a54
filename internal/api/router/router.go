package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/go-hardware-signer/internal/api"
	"github/chapool/go-hardware-signer/internal/api/handlers"
	"github/chapool/go-hardware-signer/internal/api/httperrors"
)

// Init wires the echo instance, middleware stack and all route groups into
// the server
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.Debug = false
	s.Echo.HideBanner = true
	s.Echo.HTTPErrorHandler = errorHandler(s)

	s.Echo.Use(echomiddleware.Recover())
	s.Echo.Use(echomiddleware.RequestID())
	s.Echo.Use(requestLogger(s))

	s.Router = &api.Router{
		Routes:        nil, // filled by handlers.AttachAllRoutes
		Root:          s.Echo.Group(""),
		Management:    s.Echo.Group("/-"),
		APIV1Hardware: s.Echo.Group("/api/v1/hardware"),
	}

	handlers.AttachAllRoutes(s)
}

// requestLogger binds a request-scoped zerolog logger into the context and
// emits one line per request
func requestLogger(s *api.Server) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			l := log.With().
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()

			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			l.Debug().Int("status", c.Response().Status).Msg("Request handled")
			return nil
		}
	}
}

// errorHandler serializes public errors and hides internal ones
func errorHandler(s *api.Server) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *httperrors.HTTPError
		if errors.As(err, &httpErr) {
			if jsonErr := c.JSON(httpErr.Code, httpErr); jsonErr != nil {
				log.Error().Err(jsonErr).Msg("Failed to write error response")
			}
			return
		}

		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			msg := http.StatusText(echoErr.Code)
			if m, ok := echoErr.Message.(string); ok {
				msg = m
			}
			public := httperrors.NewHTTPError(echoErr.Code, httperrors.HTTPErrorTypeGeneric, msg)
			if jsonErr := c.JSON(public.Code, public); jsonErr != nil {
				log.Error().Err(jsonErr).Msg("Failed to write error response")
			}
			return
		}

		log.Error().Err(err).Msg("Unhandled error")

		public := httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.HTTPErrorTypeGeneric, http.StatusText(http.StatusInternalServerError))
		if !s.Config.Echo.HideInternalServerErrorDetails {
			public.Detail = err.Error()
		}
		if jsonErr := c.JSON(public.Code, public); jsonErr != nil {
			log.Error().Err(jsonErr).Msg("Failed to write error response")
		}
	}
}
