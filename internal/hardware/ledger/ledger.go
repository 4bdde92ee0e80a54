// Package ledger implements the APDU device drivers. Commands follow the
// vendor app protocols: derivation paths serialize as a count byte plus
// 4-byte big-endian indices, and long payloads split into 255-byte chunks
// with a continuation marker.
package ledger

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/hdcache"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
	"github/chapool/go-hardware-signer/internal/util"
)

const claEthereum = 0xe0

// Ethereum app instructions
const (
	insGetAddress       = 0x02
	insSignTransaction  = 0x04
	insSignPersonal     = 0x08
	insSignTypedMessage = 0x0c
)

// Solana app instructions
const (
	insSolGetPubkey = 0x05
	insSolSign      = 0x06
)

const (
	p1First    = 0x00
	p1Continue = 0x80

	p1NoConfirm = 0x00
	p1Confirm   = 0x01

	p2NoChainCode = 0x00
	p2ChainCode   = 0x01
)

const chunkSize = 255

// session holds the shared device lifecycle of the APDU-family drivers
type session struct {
	device transport.Device
	cache  *hdcache.Cache
}

func newSession(device transport.Device) session {
	return session{
		device: device,
		cache:  hdcache.New(),
	}
}

func (s *session) init(ctx context.Context) error {
	if err := s.device.Open(ctx); err != nil {
		return hardware.FromTransportError(err)
	}
	s.cache.Invalidate()
	util.LogFromContext(ctx).Debug().Msg("APDU driver initialized")
	return nil
}

func (s *session) ensureReady() error {
	if !s.device.Connected() {
		return hardware.ErrTransportNotInitialized
	}
	return nil
}

func (s *session) close(ctx context.Context) error {
	return s.device.Close(ctx)
}

// IsConnected reports whether the device channel is open
func (s *session) IsConnected() bool {
	return s.device.Connected()
}

// serializePath packs a derivation path for the device: count byte plus
// 4-byte big-endian indices
func serializePath(path string) ([]byte, error) {
	indices, err := hardware.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 || len(indices) > 10 {
		return nil, errors.Errorf("invalid path depth: %d", len(indices))
	}

	out := make([]byte, 1+4*len(indices))
	out[0] = byte(len(indices))
	for i, index := range indices {
		binary.BigEndian.PutUint32(out[1+4*i:], index)
	}
	return out, nil
}

// exchangeChunked streams a payload to the device in 255-byte chunks,
// marking continuations with P1 0x80, and returns the final reply
func (s *session) exchangeChunked(ctx context.Context, ins byte, p2 byte, payload []byte) ([]byte, error) {
	p1 := byte(p1First)
	var reply []byte

	for len(payload) > 0 {
		chunk := chunkSize
		if chunk > len(payload) {
			chunk = len(payload)
		}

		var err error
		reply, err = s.device.Exchange(ctx, transport.APDU{
			CLA:  claEthereum,
			INS:  ins,
			P1:   p1,
			P2:   p2,
			Data: payload[:chunk],
		})
		if err != nil {
			return nil, hardware.FromTransportError(err)
		}

		payload = payload[chunk:]
		p1 = p1Continue
	}

	return reply, nil
}
