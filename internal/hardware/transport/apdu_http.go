package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/util"
)

// DefaultDeviceOrigin is the loopback origin of the APDU proxy daemon
const DefaultDeviceOrigin = "http://127.0.0.1:9998"

// status words of interest
const (
	swOK           = 0x9000
	swUserRejected = 0x6985
	swAppNotOpen   = 0x6d00
)

type apduRequest struct {
	Data string `json:"data"`
}

type apduResponse struct {
	Data string `json:"data"`
}

// HTTPDevice exchanges APDUs with a Ledger-style device through a local
// HTTP proxy (the transport used by the speculos emulator and desktop
// agents alike)
type HTTPDevice struct {
	origin string
	client *http.Client
	opened bool
}

// NewHTTPDevice builds an APDU client against origin (empty means the
// default loopback proxy)
func NewHTTPDevice(origin string) *HTTPDevice {
	if origin == "" {
		origin = DefaultDeviceOrigin
	}
	return &HTTPDevice{
		origin: origin,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Open claims the device channel
func (d *HTTPDevice) Open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.origin+"/open", nil)
	if err != nil {
		return errors.Wrap(err, "failed to build open request")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	res, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to open device channel")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("device proxy returned status %d", res.StatusCode)
	}

	d.opened = true
	util.LogFromContext(ctx).Debug().Str("origin", d.origin).Msg("Device channel opened")
	return nil
}

// Exchange sends one APDU and returns the reply data with the status word
// stripped. Non-success status words normalize into the taxonomy.
func (d *HTTPDevice) Exchange(ctx context.Context, apdu APDU) ([]byte, error) {
	if !d.opened {
		return nil, hardware.ErrTransportNotInitialized
	}
	if len(apdu.Data) > 255 {
		return nil, errors.Errorf("apdu data too long: %d", len(apdu.Data))
	}

	frame := make([]byte, 0, 5+len(apdu.Data))
	frame = append(frame, apdu.CLA, apdu.INS, apdu.P1, apdu.P2, byte(len(apdu.Data)))
	frame = append(frame, apdu.Data...)

	body, err := json.Marshal(apduRequest{Data: hex.EncodeToString(frame)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode apdu request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.origin+"/apdu", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build apdu request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	res, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "apdu exchange failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("device proxy returned status %d", res.StatusCode)
	}

	var reply apduResponse
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, errors.Wrap(err, "failed to decode apdu response")
	}

	raw, err := hex.DecodeString(reply.Data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid apdu response hex")
	}
	if len(raw) < 2 {
		return nil, errors.Errorf("apdu response too short: %d", len(raw))
	}

	sw := binary.BigEndian.Uint16(raw[len(raw)-2:])
	switch sw {
	case swOK:
		return raw[:len(raw)-2], nil
	case swUserRejected:
		return nil, hardware.DeviceRejected("user rejected on device")
	case swAppNotOpen:
		return nil, hardware.DeviceRejected("required app is not open on device")
	default:
		return nil, hardware.DeviceRejected(fmt.Sprintf("device returned status 0x%04x", sw))
	}
}

// Close releases the device channel; repeated calls are harmless
func (d *HTTPDevice) Close(ctx context.Context) error {
	if !d.opened {
		return nil
	}
	d.opened = false

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.origin+"/close", nil)
	if err != nil {
		return nil
	}

	// best effort
	if res, err := d.client.Do(req); err == nil {
		res.Body.Close()
	}

	return nil
}

// Connected reports whether the channel is open
func (d *HTTPDevice) Connected() bool {
	return d.opened
}

var _ Device = (*HTTPDevice)(nil)
