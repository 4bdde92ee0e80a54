package hardware

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/go-hardware-signer/internal/api"
	"github/chapool/go-hardware-signer/internal/api/httperrors"
	hw "github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/util"
)

type postSignTransactionRequest struct {
	driverParams
	Transaction json.RawMessage `json:"transaction"`
}

type signTransactionResponse struct {
	Signature    string `json:"signature,omitempty"`
	SerializedTx string `json:"serializedTx,omitempty"`
}

// PostSignTransactionRoute 使用硬件设备签名交易
func PostSignTransactionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Hardware.POST("/sign-transaction", postSignTransactionHandler(s))
}

func postSignTransactionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body postSignTransactionRequest
		if err := bindBody(c, &body); err != nil {
			return err
		}

		driver, err := resolveDriver(s, c, body.driverParams)
		if err != nil {
			return err
		}

		tx, err := decodeTransaction(driver.Chain(), body.Transaction, s.Config.Hardware.DefaultEVMChainID)
		if err != nil {
			return err
		}

		res, err := driver.SignTransaction(ctx, hw.SignTransactionRequest{
			PathType:    body.PathType,
			PathIndex:   body.PathIndex,
			Transaction: tx,
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to sign transaction")
			return toHTTPError(err)
		}

		return c.JSON(http.StatusOK, signTransactionResponse{
			Signature:    sigutil.EncodeHex(res.Signature),
			SerializedTx: sigutil.EncodeHex(res.SerializedTx),
		})
	}
}

// decodeTransaction unmarshals the chain-specific transaction variant. EVM
// transactions without a chain id fall back to the configured default.
func decodeTransaction(chain hw.Chain, raw json.RawMessage, defaultEVMChainID int64) (hw.Transaction, error) {
	if len(raw) == 0 {
		return nil, httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.HTTPErrorTypeGeneric, "Invalid request.", "missing required field: transaction")
	}

	var tx hw.Transaction
	switch chain {
	case hw.ChainBitcoin:
		tx = &hw.UTXOTransaction{}
	case hw.ChainEthereum:
		tx = &hw.EVMTransaction{}
	case hw.ChainSolana:
		tx = &hw.SolanaTransaction{}
	default:
		return nil, toHTTPError(hw.ErrInvalidNetwork)
	}

	if err := json.Unmarshal(raw, tx); err != nil {
		return nil, httperrors.ErrBadRequestMalformedBody
	}

	if evm, ok := tx.(*hw.EVMTransaction); ok && evm.ChainID <= 0 {
		evm.ChainID = defaultEVMChainID
	}

	return tx, nil
}
