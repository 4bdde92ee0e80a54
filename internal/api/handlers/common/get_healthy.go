package common

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
)

// GetHealthyRoute liveness probe, always succeeds while the process serves
func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

func getHealthyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "OK.")
	}
}
