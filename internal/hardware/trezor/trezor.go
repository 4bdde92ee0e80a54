// Package trezor implements the bridge-connected device drivers. All device
// traffic goes through the vendor bridge RPC; extended public keys are
// cached per base path so address lookups below a non-hardened suffix cost
// a single round-trip.
package trezor

import (
	"context"

	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/hdcache"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
	"github/chapool/go-hardware-signer/internal/util"
)

// session holds the shared bridge lifecycle of the bridge-family drivers
type session struct {
	bridge transport.Bridge
	cache  *hdcache.Cache
}

func newSession(bridge transport.Bridge) session {
	return session{
		bridge: bridge,
		cache:  hdcache.New(),
	}
}

// init acquires the bridge session and drops all cached keys, so a swapped
// device never serves stale material
func (s *session) init(ctx context.Context) error {
	if err := s.bridge.Acquire(ctx); err != nil {
		return errors.Wrap(err, "failed to acquire bridge session")
	}
	s.cache.Invalidate()
	util.LogFromContext(ctx).Debug().Msg("Bridge driver initialized")
	return nil
}

func (s *session) ensureReady() error {
	if !s.bridge.Connected() {
		return hardware.ErrTransportNotInitialized
	}
	return nil
}

func (s *session) close(ctx context.Context) error {
	return s.bridge.Release(ctx)
}

// IsConnected reports whether the bridge session is live
func (s *session) IsConnected() bool {
	return s.bridge.Connected()
}

// publicKeyPayload is the bridge reply to a get-public-key call
type publicKeyPayload struct {
	PublicKey string `json:"publicKey"`
	ChainCode string `json:"chainCode"`
}

// nodeAt returns the extended public key at basePath, fetching it from the
// device on the first request and from the cache afterwards
func (s *session) nodeAt(ctx context.Context, method, basePath string, extra map[string]interface{}) (hdcache.Node, error) {
	if node, ok := s.cache.Get(basePath); ok {
		return node, nil
	}

	params := map[string]interface{}{"path": basePath}
	for k, v := range extra {
		params[k] = v
	}

	var payload publicKeyPayload
	if err := transport.CallAndDecode(ctx, s.bridge, method, params, &payload); err != nil {
		return hdcache.Node{}, err
	}

	node, err := nodeFromPayload(payload)
	if err != nil {
		return hdcache.Node{}, err
	}

	s.cache.Populate(basePath, node)
	return node, nil
}

func nodeFromPayload(payload publicKeyPayload) (hdcache.Node, error) {
	pub, err := decodeHexField(payload.PublicKey, "publicKey")
	if err != nil {
		return hdcache.Node{}, err
	}
	cc, err := decodeHexField(payload.ChainCode, "chainCode")
	if err != nil {
		return hdcache.Node{}, err
	}

	node, err := hdcache.NewNode(pub, cc)
	if err != nil {
		return hdcache.Node{}, errors.Wrap(err, "device returned invalid key material")
	}
	return node, nil
}

func decodeHexField(s, field string) ([]byte, error) {
	if s == "" {
		return nil, hardware.MissingField(field)
	}
	b, err := sigutil.DecodeHex(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s in device payload", field)
	}
	return b, nil
}
