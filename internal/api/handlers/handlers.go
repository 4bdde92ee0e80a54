package handlers

import (
	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
	"github/chapool/go-hardware-signer/internal/api/handlers/common"
	"github/chapool/go-hardware-signer/internal/api/handlers/hardware"
)

// AttachAllRoutes attaches all registered routes to the server
func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetReadyRoute(s),
		hardware.PostAddressRoute(s),
		hardware.PostSignTransactionRoute(s),
		hardware.PostSignMessageRoute(s),
		hardware.PostSignTypedDataRoute(s),
		hardware.GetCapabilitiesRoute(s),
		hardware.GetPathsRoute(s),
	}
}
