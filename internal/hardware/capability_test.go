package hardware_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github/chapool/go-hardware-signer/internal/hardware"
)

func TestCapabilities(t *testing.T) {
	assert.ElementsMatch(t,
		[]hardware.Capability{hardware.CapabilitySignMessage, hardware.CapabilitySignTx},
		hardware.Capabilities(hardware.ChainBitcoin, hardware.VendorTrezor),
	)

	assert.ElementsMatch(t,
		[]hardware.Capability{hardware.CapabilitySignTx},
		hardware.Capabilities(hardware.ChainSolana, hardware.VendorLedger),
	)

	assert.Empty(t, hardware.Capabilities(hardware.ChainBitcoin, hardware.VendorLedger))
}

func TestHasCapability(t *testing.T) {
	assert.True(t, hardware.HasCapability(hardware.ChainEthereum, hardware.VendorTrezor, hardware.CapabilityTypedMessage))
	assert.True(t, hardware.HasCapability(hardware.ChainEthereum, hardware.VendorLedger, hardware.CapabilityEIP1559))
	assert.False(t, hardware.HasCapability(hardware.ChainBitcoin, hardware.VendorTrezor, hardware.CapabilityTypedMessage))
	assert.False(t, hardware.HasCapability(hardware.ChainSolana, hardware.VendorLedger, hardware.CapabilitySignMessage))
}
