package format

import (
	"github/chapool/go-hardware-signer/internal/hardware"
)

// ValidateSolanaTransaction checks the passthrough payload before it is
// handed to the device verbatim
func ValidateSolanaTransaction(tx *hardware.SolanaTransaction) error {
	if tx == nil || len(tx.SerializedTx) == 0 {
		return hardware.MissingField("serializedTx")
	}
	return nil
}
