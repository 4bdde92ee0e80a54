// Package transport holds the vendor session boundary: the popup-bridge RPC
// used by bridge-connected devices and the APDU exchange used by
// Ledger-style devices, plus normalization of their failures into the
// hardware error taxonomy.
package transport

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
)

// Result is the bridge response envelope. Every bridge method resolves to
// this shape; Success false carries a PayloadError payload.
type Result struct {
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
}

// PayloadError is the payload of a failed bridge result
type PayloadError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Bridge is the popup-bridge session. Acquire opens the device session
// (spawning the vendor popup); Call performs one RPC round-trip on the
// acquired session.
type Bridge interface {
	Acquire(ctx context.Context) error
	Call(ctx context.Context, method string, params interface{}) (*Result, error)
	Release(ctx context.Context) error
	Connected() bool
}

// APDU is one command unit of the ISO 7816 smart-card protocol
type APDU struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
}

// Device is an opened APDU channel to a Ledger-style device. Exchange
// returns the reply data with the trailing status word already checked.
type Device interface {
	Open(ctx context.Context) error
	Exchange(ctx context.Context, apdu APDU) ([]byte, error)
	Close(ctx context.Context) error
	Connected() bool
}

// DecodePayload unpacks a bridge result. Failed results normalize into a
// device rejection carrying the bridge's error string verbatim; successful
// payloads unmarshal into out (which may be nil to discard). A successful
// result that carries no decodable payload means the popup never produced
// one, so it classifies as the popup failing to open.
func DecodePayload(res *Result, out interface{}) error {
	if res == nil {
		return hardware.DeviceRejected("empty bridge response")
	}

	if !res.Success {
		var perr PayloadError
		if err := json.Unmarshal(res.Payload, &perr); err != nil || perr.Error == "" {
			return hardware.DeviceRejected("device request failed")
		}
		return hardware.DeviceRejected(perr.Error)
	}

	if out == nil {
		return nil
	}
	if len(res.Payload) == 0 {
		return errors.Wrap(hardware.ErrPopupFailedToOpen, "bridge returned no payload")
	}
	if err := json.Unmarshal(res.Payload, out); err != nil {
		return errors.Wrapf(hardware.ErrPopupFailedToOpen, "failed to decode bridge payload: %v", err)
	}
	return nil
}

// CallAndDecode runs one bridge round-trip and normalizes every failure
// mode (transport error, failed envelope, malformed payload) into the
// taxonomy
func CallAndDecode(ctx context.Context, bridge Bridge, method string, params interface{}, out interface{}) error {
	res, err := bridge.Call(ctx, method, params)
	if err != nil {
		return hardware.FromTransportError(err)
	}
	return DecodePayload(res, out)
}
