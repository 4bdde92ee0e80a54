package transport_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

func TestDecodePayload(t *testing.T) {
	var out struct {
		Address string `json:"address"`
	}

	res := &transport.Result{Success: true, Payload: json.RawMessage(`{"address":"0xabc"}`)}
	require.NoError(t, transport.DecodePayload(res, &out))
	assert.Equal(t, "0xabc", out.Address)

	// discard payload
	require.NoError(t, transport.DecodePayload(res, nil))
}

func TestDecodePayloadMissingPayloadOnSuccess(t *testing.T) {
	var out struct {
		Address string `json:"address"`
	}

	// a successful envelope without a payload means the popup never
	// produced one
	err := transport.DecodePayload(&transport.Result{Success: true}, &out)
	assert.True(t, hardware.IsKind(err, hardware.KindPopupFailedToOpen))

	// a payload that does not decode classifies the same way
	err = transport.DecodePayload(&transport.Result{Success: true, Payload: json.RawMessage(`{"addr`)}, &out)
	assert.True(t, hardware.IsKind(err, hardware.KindPopupFailedToOpen))

	// discarding the payload stays fine
	require.NoError(t, transport.DecodePayload(&transport.Result{Success: true}, nil))
}

func TestDecodePayloadFailureEnvelope(t *testing.T) {
	res := &transport.Result{Success: false, Payload: json.RawMessage(`{"error":"Permissions not granted"}`)}

	err := transport.DecodePayload(res, nil)
	require.True(t, hardware.IsKind(err, hardware.KindDeviceRejected))

	var taxonomy *hardware.Error
	require.True(t, errors.As(err, &taxonomy))
	assert.Equal(t, "Permissions not granted", taxonomy.Message)

	// malformed failure payload still classifies as rejection
	res = &transport.Result{Success: false, Payload: json.RawMessage(`42`)}
	assert.True(t, hardware.IsKind(transport.DecodePayload(res, nil), hardware.KindDeviceRejected))

	assert.True(t, hardware.IsKind(transport.DecodePayload(nil, nil), hardware.KindDeviceRejected))
}

type stubBridge struct {
	res *transport.Result
	err error
}

func (s *stubBridge) Acquire(ctx context.Context) error { return nil }
func (s *stubBridge) Call(ctx context.Context, method string, params interface{}) (*transport.Result, error) {
	return s.res, s.err
}
func (s *stubBridge) Release(ctx context.Context) error { return nil }
func (s *stubBridge) Connected() bool                   { return true }

func TestCallAndDecodeNormalizesThrownError(t *testing.T) {
	bridge := &stubBridge{err: errors.New("Permissions not granted")}

	err := transport.CallAndDecode(context.Background(), bridge, "getAddress", nil, nil)
	require.True(t, hardware.IsKind(err, hardware.KindDeviceRejected))

	var taxonomy *hardware.Error
	require.True(t, errors.As(err, &taxonomy))
	assert.Equal(t, "Permissions not granted", taxonomy.Message)
}

func TestCallAndDecodeEnvelopeAndThrownErrorMatch(t *testing.T) {
	thrown := &stubBridge{err: errors.New("X")}
	enveloped := &stubBridge{res: &transport.Result{Success: false, Payload: json.RawMessage(`{"error":"X"}`)}}

	errThrown := transport.CallAndDecode(context.Background(), thrown, "signTransaction", nil, nil)
	errEnveloped := transport.CallAndDecode(context.Background(), enveloped, "signTransaction", nil, nil)

	var a, b *hardware.Error
	require.True(t, errors.As(errThrown, &a))
	require.True(t, errors.As(errEnveloped, &b))
	assert.Equal(t, a.Kind, b.Kind)
	assert.Equal(t, a.Message, b.Message)
}

func TestHTTPBridgeSessionLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acquire", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"session": "s-1"})
	})
	mux.HandleFunc("/call/s-1", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(transport.Result{
			Success: true,
			Payload: json.RawMessage(`{"method":"` + req.Method + `"}`),
		})
	})
	mux.HandleFunc("/release/s-1", func(w http.ResponseWriter, r *http.Request) {})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	bridge := transport.NewHTTPBridge(srv.URL)
	assert.False(t, bridge.Connected())

	// calling before acquire fails with the transport sentinel
	_, err := bridge.Call(ctx, "getAddress", nil)
	assert.True(t, errors.Is(err, hardware.ErrTransportNotInitialized))

	require.NoError(t, bridge.Acquire(ctx))
	assert.True(t, bridge.Connected())

	res, err := bridge.Call(ctx, "getAddress", map[string]string{"path": "m/44'/60'/0'/0/0"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.NoError(t, bridge.Release(ctx))
	assert.False(t, bridge.Connected())
	require.NoError(t, bridge.Release(ctx))
}

func TestHTTPBridgeAcquireFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bridge := transport.NewHTTPBridge(srv.URL)
	err := bridge.Acquire(context.Background())
	assert.True(t, errors.Is(err, hardware.ErrPopupFailedToOpen))
	assert.False(t, bridge.Connected())
}

func TestHTTPDeviceExchange(t *testing.T) {
	var got []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/apdu", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Data string `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		got, _ = hex.DecodeString(req.Data)
		_ = json.NewEncoder(w).Encode(map[string]string{"data": "cafe9000"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	device := transport.NewHTTPDevice(srv.URL)

	_, err := device.Exchange(ctx, transport.APDU{})
	assert.True(t, errors.Is(err, hardware.ErrTransportNotInitialized))

	require.NoError(t, device.Open(ctx))
	require.True(t, device.Connected())

	reply, err := device.Exchange(ctx, transport.APDU{CLA: 0xe0, INS: 0x02, P1: 0x01, Data: []byte{0xaa, 0xbb}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, reply)
	assert.Equal(t, []byte{0xe0, 0x02, 0x01, 0x00, 0x02, 0xaa, 0xbb}, got)

	require.NoError(t, device.Close(ctx))
	assert.False(t, device.Connected())
	require.NoError(t, device.Close(ctx))
}

func TestHTTPDeviceStatusWords(t *testing.T) {
	reply := "6985"
	mux := http.NewServeMux()
	mux.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/apdu", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"data": reply})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	device := transport.NewHTTPDevice(srv.URL)
	require.NoError(t, device.Open(ctx))

	_, err := device.Exchange(ctx, transport.APDU{})
	require.True(t, hardware.IsKind(err, hardware.KindDeviceRejected))

	var taxonomy *hardware.Error
	require.True(t, errors.As(err, &taxonomy))
	assert.Equal(t, "user rejected on device", taxonomy.Message)

	reply = "6a80"
	_, err = device.Exchange(ctx, transport.APDU{})
	require.True(t, hardware.IsKind(err, hardware.KindDeviceRejected))
	require.True(t, errors.As(err, &taxonomy))
	assert.Contains(t, taxonomy.Message, "0x6a80")
}
