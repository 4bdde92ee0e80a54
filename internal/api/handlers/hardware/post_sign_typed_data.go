package hardware

import (
	"net/http"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
	hw "github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/util"
)

type postSignTypedDataRequest struct {
	driverParams
	TypedData apitypes.TypedData `json:"typedData"`
}

// PostSignTypedDataRoute 使用硬件设备签名 EIP-712 结构化数据
func PostSignTypedDataRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Hardware.POST("/sign-typed-data", postSignTypedDataHandler(s))
}

func postSignTypedDataHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body postSignTypedDataRequest
		if err := bindBody(c, &body); err != nil {
			return err
		}

		driver, err := resolveDriver(s, c, body.driverParams)
		if err != nil {
			return err
		}

		sig, err := driver.SignTypedMessage(ctx, hw.SignTypedMessageRequest{
			PathType:  body.PathType,
			PathIndex: body.PathIndex,
			TypedData: body.TypedData,
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to sign typed data")
			return toHTTPError(err)
		}

		return c.JSON(http.StatusOK, signMessageResponse{Signature: sigutil.EncodeHex(sig)})
	}
}
