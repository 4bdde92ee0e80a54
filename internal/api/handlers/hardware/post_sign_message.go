package hardware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
	"github/chapool/go-hardware-signer/internal/api/httperrors"
	hw "github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/util"
)

type postSignMessageRequest struct {
	driverParams
	// Message is hex encoded so binary payloads survive JSON transport
	Message  string `json:"message"`
	SignType string `json:"signType,omitempty"`
}

type signMessageResponse struct {
	Signature string `json:"signature"`
}

// PostSignMessageRoute 使用硬件设备签名消息
func PostSignMessageRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Hardware.POST("/sign-message", postSignMessageHandler(s))
}

func postSignMessageHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body postSignMessageRequest
		if err := bindBody(c, &body); err != nil {
			return err
		}

		driver, err := resolveDriver(s, c, body.driverParams)
		if err != nil {
			return err
		}

		message, err := sigutil.DecodeHex(body.Message)
		if err != nil {
			return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.HTTPErrorTypeGeneric, "Invalid request.", "message must be hex encoded")
		}

		sig, err := driver.SignPersonalMessage(ctx, hw.SignMessageRequest{
			PathType:  body.PathType,
			PathIndex: body.PathIndex,
			Message:   message,
			Type:      hw.MessageSignType(body.SignType),
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to sign message")
			return toHTTPError(err)
		}

		return c.JSON(http.StatusOK, signMessageResponse{Signature: sigutil.EncodeHex(sig)})
	}
}
