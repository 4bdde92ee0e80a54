// Package hardware exposes the device driver operations as JSON routes
package hardware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github/chapool/go-hardware-signer/internal/api"
	"github/chapool/go-hardware-signer/internal/api/httperrors"
	hw "github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/pathcatalog"
)

// driverParams is the request envelope shared by all signing routes
type driverParams struct {
	Chain     string      `json:"chain"`
	Vendor    string      `json:"vendor"`
	PathType  hw.PathType `json:"pathType"`
	PathIndex uint32      `json:"pathIndex"`
}

func bindBody(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return httperrors.ErrBadRequestMalformedBody
	}
	return nil
}

// resolveDriver validates the envelope, looks up the driver and makes sure
// its device session is live, acquiring one on first use. A driver whose
// session was lost re-initializes on the next request, so a failed popup is
// recoverable by retrying. The path type must come from the variant's
// catalog.
func resolveDriver(s *api.Server, c echo.Context, p driverParams) (hw.Driver, error) {
	if p.Chain == "" {
		return nil, httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.HTTPErrorTypeGeneric, "Invalid request.", "missing required field: chain")
	}
	if p.Vendor == "" {
		return nil, httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.HTTPErrorTypeGeneric, "Invalid request.", "missing required field: vendor")
	}

	chain := hw.Chain(p.Chain)
	vendor := hw.Vendor(p.Vendor)

	driver, err := s.Drivers.Driver(chain, vendor)
	if err != nil {
		return nil, toHTTPError(err)
	}

	if !pathcatalog.Contains(chain, vendor, p.PathType) {
		return nil, httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.HTTPErrorTypeGeneric, "Invalid request.", "path type is not supported for this chain and vendor")
	}

	if !driver.IsConnected() {
		if err := driver.Init(c.Request().Context()); err != nil {
			return nil, toHTTPError(err)
		}
	}

	return driver, nil
}

// toHTTPError maps the hardware error taxonomy onto public status codes
func toHTTPError(err error) error {
	var taxonomy *hw.Error
	if !errors.As(err, &taxonomy) {
		return err
	}

	detail := taxonomy.Message

	switch taxonomy.Kind {
	case hw.KindMissingField, hw.KindInvalidNetwork:
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.HTTPErrorTypeGeneric, "Invalid request.", detail)
	case hw.KindUnsupportedOperation:
		return httperrors.NewHTTPErrorWithDetail(http.StatusUnprocessableEntity, httperrors.HTTPErrorTypeGeneric, "Operation not supported.", detail)
	case hw.KindDeviceRejected:
		return httperrors.NewHTTPErrorWithDetail(http.StatusConflict, httperrors.HTTPErrorTypeGeneric, "Device rejected the request.", detail)
	case hw.KindPopupFailedToOpen:
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadGateway, httperrors.HTTPErrorTypeGeneric, "Vendor popup failed to open.", detail)
	case hw.KindTransportNotInitialized:
		return httperrors.NewHTTPErrorWithDetail(http.StatusServiceUnavailable, httperrors.HTTPErrorTypeGeneric, "Device session not initialized.", detail)
	default:
		return err
	}
}
