package hardware

// Capability names one optional device operation
type Capability string

const (
	CapabilitySignMessage  Capability = "signMessage"
	CapabilitySignTx       Capability = "signTx"
	CapabilityTypedMessage Capability = "typedMessage"
	CapabilityEIP1559      Capability = "eip1559"
)

type variant struct {
	Chain  Chain
	Vendor Vendor
}

// capabilityTable is fixed at compile time; drivers consult it before
// touching the transport so unsupported operations fail without a
// device round-trip.
var capabilityTable = map[variant][]Capability{
	{ChainBitcoin, VendorTrezor}:  {CapabilitySignMessage, CapabilitySignTx},
	{ChainEthereum, VendorTrezor}: {CapabilitySignMessage, CapabilitySignTx, CapabilityTypedMessage, CapabilityEIP1559},
	{ChainEthereum, VendorLedger}: {CapabilitySignMessage, CapabilitySignTx, CapabilityTypedMessage, CapabilityEIP1559},
	{ChainSolana, VendorLedger}:   {CapabilitySignTx},
}

// Capabilities returns the capability set of a (chain, vendor) variant.
// Unknown variants return an empty slice.
func Capabilities(chain Chain, vendor Vendor) []Capability {
	caps, ok := capabilityTable[variant{chain, vendor}]
	if !ok {
		return []Capability{}
	}
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// HasCapability checks one capability of a (chain, vendor) variant
func HasCapability(chain Chain, vendor Vendor, capability Capability) bool {
	for _, c := range capabilityTable[variant{chain, vendor}] {
		if c == capability {
			return true
		}
	}
	return false
}
