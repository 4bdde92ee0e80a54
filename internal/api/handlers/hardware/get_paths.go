package hardware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
	"github/chapool/go-hardware-signer/internal/api/httperrors"
	hw "github/chapool/go-hardware-signer/internal/hardware"
)

type pathsResponse struct {
	Chain  string        `json:"chain"`
	Vendor string        `json:"vendor"`
	Paths  []hw.PathType `json:"paths"`
}

// GetPathsRoute 查询链和厂商支持的派生路径模板
func GetPathsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Hardware.GET("/paths", getPathsHandler(s))
}

func getPathsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		chain := c.QueryParam("chain")
		vendor := c.QueryParam("vendor")
		if chain == "" || vendor == "" {
			return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.HTTPErrorTypeGeneric, "Invalid request.", "chain and vendor query parameters are required")
		}

		driver, err := s.Drivers.Driver(hw.Chain(chain), hw.Vendor(vendor))
		if err != nil {
			return toHTTPError(err)
		}

		return c.JSON(http.StatusOK, pathsResponse{
			Chain:  chain,
			Vendor: vendor,
			Paths:  driver.SupportedPaths(),
		})
	}
}
