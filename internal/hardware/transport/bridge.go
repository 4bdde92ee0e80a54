package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/util"
)

// DefaultBridgeOrigin is the loopback origin of the vendor bridge daemon
const DefaultBridgeOrigin = "http://127.0.0.1:21325"

type bridgeCallRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type acquireResponse struct {
	Session string `json:"session"`
}

// HTTPBridge talks to the vendor's local bridge daemon over HTTP. One
// bridge holds at most one device session; callers serialize use.
type HTTPBridge struct {
	origin  string
	client  *http.Client
	session string
}

// NewHTTPBridge builds a bridge client against origin (empty means the
// default loopback daemon)
func NewHTTPBridge(origin string) *HTTPBridge {
	if origin == "" {
		origin = DefaultBridgeOrigin
	}
	return &HTTPBridge{
		origin: origin,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Acquire opens the device session. The daemon spawns the vendor popup as
// part of acquisition, so every acquisition failure reports as the popup
// failing to open.
func (b *HTTPBridge) Acquire(ctx context.Context) error {
	log := util.LogFromContext(ctx)

	body, status, err := b.post(ctx, "/acquire", nil)
	if err != nil {
		log.Debug().Err(err).Msg("Bridge acquire failed")
		return errors.Wrap(hardware.ErrPopupFailedToOpen, err.Error())
	}
	if status != http.StatusOK {
		log.Debug().Int("status", status).Msg("Bridge acquire rejected")
		return errors.Wrapf(hardware.ErrPopupFailedToOpen, "bridge returned status %d", status)
	}

	var res acquireResponse
	if err := json.Unmarshal(body, &res); err != nil || res.Session == "" {
		return errors.Wrap(hardware.ErrPopupFailedToOpen, "bridge returned no session")
	}

	b.session = res.Session
	log.Debug().Str("session", res.Session).Msg("Bridge session acquired")
	return nil
}

// Call performs one RPC round-trip on the acquired session
func (b *HTTPBridge) Call(ctx context.Context, method string, params interface{}) (*Result, error) {
	if b.session == "" {
		return nil, hardware.ErrTransportNotInitialized
	}

	body, status, err := b.post(ctx, "/call/"+b.session, bridgeCallRequest{Method: method, Params: params})
	if err != nil {
		return nil, errors.Wrapf(err, "bridge call %s failed", method)
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("bridge call %s returned status %d", method, status)
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrapf(err, "failed to decode bridge call %s response", method)
	}

	return &res, nil
}

// Release drops the session. Releasing an unacquired bridge is a no-op.
func (b *HTTPBridge) Release(ctx context.Context) error {
	if b.session == "" {
		return nil
	}

	session := b.session
	b.session = ""

	// best effort, the daemon reaps stale sessions on its own
	if _, _, err := b.post(ctx, "/release/"+session, nil); err != nil {
		util.LogFromContext(ctx).Debug().Err(err).Msg("Bridge release failed")
	}

	return nil
}

// Connected reports whether a session is held
func (b *HTTPBridge) Connected() bool {
	return b.session != ""
}

func (b *HTTPBridge) post(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	var reqBody bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&reqBody).Encode(payload); err != nil {
			return nil, 0, errors.Wrap(err, "failed to encode bridge request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.origin+path, &reqBody)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to build bridge request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	res, err := b.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "bridge request failed")
	}
	defer res.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read bridge response")
	}

	return buf.Bytes(), res.StatusCode, nil
}

var _ Bridge = (*HTTPBridge)(nil)
