package registry_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/registry"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

type noopBridge struct{ connected bool }

func (b *noopBridge) Acquire(ctx context.Context) error { b.connected = true; return nil }
func (b *noopBridge) Call(ctx context.Context, method string, params interface{}) (*transport.Result, error) {
	return nil, errors.New("not implemented")
}
func (b *noopBridge) Release(ctx context.Context) error { b.connected = false; return nil }
func (b *noopBridge) Connected() bool                   { return b.connected }

type noopDevice struct{ opened bool }

func (d *noopDevice) Open(ctx context.Context) error { d.opened = true; return nil }
func (d *noopDevice) Exchange(ctx context.Context, apdu transport.APDU) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (d *noopDevice) Close(ctx context.Context) error { d.opened = false; return nil }
func (d *noopDevice) Connected() bool                 { return d.opened }

func testOptions() registry.Options {
	return registry.Options{
		Bridge: &noopBridge{},
		Device: &noopDevice{},
	}
}

func TestNewBuildsAllVariants(t *testing.T) {
	variants := []struct {
		chain  hardware.Chain
		vendor hardware.Vendor
	}{
		{hardware.ChainBitcoin, hardware.VendorTrezor},
		{hardware.ChainEthereum, hardware.VendorTrezor},
		{hardware.ChainEthereum, hardware.VendorLedger},
		{hardware.ChainSolana, hardware.VendorLedger},
	}

	for _, v := range variants {
		driver, err := registry.New(v.chain, v.vendor, testOptions())
		require.NoError(t, err, "variant %s/%s", v.chain, v.vendor)
		assert.Equal(t, v.chain, driver.Chain())
		assert.Equal(t, v.vendor, driver.Vendor())
		assert.NotEmpty(t, driver.SupportedPaths())
	}
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	_, err := registry.New(hardware.ChainBitcoin, hardware.VendorLedger, testOptions())
	assert.True(t, errors.Is(err, hardware.ErrInvalidNetwork))

	_, err = registry.New(hardware.Chain("dogecoin"), hardware.VendorTrezor, testOptions())
	assert.True(t, errors.Is(err, hardware.ErrInvalidNetwork))
}

func TestNewRequiresMatchingTransport(t *testing.T) {
	_, err := registry.New(hardware.ChainEthereum, hardware.VendorTrezor, registry.Options{})
	assert.Error(t, err)

	_, err = registry.New(hardware.ChainSolana, hardware.VendorLedger, registry.Options{})
	assert.Error(t, err)
}

func TestSetLifecycle(t *testing.T) {
	set := registry.NewSet()

	_, err := set.Driver(hardware.ChainEthereum, hardware.VendorTrezor)
	assert.True(t, errors.Is(err, hardware.ErrInvalidNetwork))

	driver, err := registry.New(hardware.ChainEthereum, hardware.VendorTrezor, testOptions())
	require.NoError(t, err)
	set.Register(driver)

	got, err := set.Driver(hardware.ChainEthereum, hardware.VendorTrezor)
	require.NoError(t, err)
	assert.Equal(t, driver, got)
	assert.Len(t, set.Variants(), 1)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))
	require.True(t, driver.IsConnected())
	require.NoError(t, set.CloseAll(ctx))
	assert.False(t, driver.IsConnected())
}
