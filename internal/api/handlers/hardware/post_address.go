package hardware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
	hw "github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/util"
)

type postAddressRequest struct {
	driverParams
	ShowOnDevice bool `json:"showOnDevice"`
}

// PostAddressRoute 查询指定派生路径的链上地址
func PostAddressRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Hardware.POST("/address", postAddressHandler(s))
}

func postAddressHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body postAddressRequest
		if err := bindBody(c, &body); err != nil {
			return err
		}

		driver, err := resolveDriver(s, c, body.driverParams)
		if err != nil {
			return err
		}

		res, err := driver.GetAddress(ctx, hw.AddressRequest{
			PathType:     body.PathType,
			PathIndex:    body.PathIndex,
			ShowOnDevice: body.ShowOnDevice,
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to get address")
			return toHTTPError(err)
		}

		return c.JSON(http.StatusOK, res)
	}
}
