package hardware

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// Chain identifies a supported blockchain family
type Chain string

const (
	ChainBitcoin  Chain = "bitcoin"
	ChainEthereum Chain = "ethereum"
	ChainSolana   Chain = "solana"
)

// Vendor identifies a supported hardware device family
type Vendor string

const (
	// VendorTrezor covers bridge-connected devices speaking the
	// {success, payload} popup RPC protocol
	VendorTrezor Vendor = "trezor"
	// VendorLedger covers APDU devices
	VendorLedger Vendor = "ledger"
)

// HardenedOffset marks the first hardened derivation index (BIP32)
const HardenedOffset uint32 = 0x80000000

// PathType is a derivation path template for one address family of a chain.
// Path contains an "{index}" placeholder which is substituted per request;
// BasePath is the prefix at which an extended public key can be fetched and
// cached for local child derivation.
type PathType struct {
	BasePath string `json:"basePath"`
	Path     string `json:"path"`
}

// Resolve substitutes the address index into the path template
func (p PathType) Resolve(index uint32) string {
	return strings.ReplaceAll(p.Path, "{index}", strconv.FormatUint(uint64(index), 10))
}

// HardenedSuffix reports whether every path segment below the base path uses
// the hardened marker. Hardened suffixes cannot be derived from a cached
// extended public key and always require a device round-trip.
func (p PathType) HardenedSuffix() (bool, error) {
	base, err := ParsePath(p.BasePath)
	if err != nil {
		return false, errors.Wrap(err, "failed to parse base path")
	}

	// Parse with the placeholder substituted by a non-hardened probe index;
	// only the hardened markers of the template segments matter here.
	full, err := ParsePath(p.Resolve(0))
	if err != nil {
		return false, errors.Wrap(err, "failed to parse path template")
	}

	if len(full) <= len(base) {
		return false, errors.Errorf("path template %q is not below base path %q", p.Path, p.BasePath)
	}

	for _, index := range full[len(base):] {
		if !IsHardened(index) {
			return false, nil
		}
	}

	// The template marker decides the index segment itself
	if strings.Contains(p.Path, "{index}'") || strings.Contains(p.Path, "{index}h") {
		return true, nil
	}

	return !strings.Contains(p.Path, "{index}"), nil
}

// IsHardened checks whether a derivation index carries the hardened flag
func IsHardened(index uint32) bool {
	return index >= HardenedOffset
}

// ParsePath parses a BIP32/BIP44 derivation path string into indices
// Example: "m/44'/60'/0'/0/0" -> [2147483692, 2147483708, 2147483648, 0, 0]
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, errors.Errorf("invalid derivation path: %s", path)
	}
	parts = parts[1:]

	indices := make([]uint32, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}

		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}

		value, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid path segment: %s", part)
		}

		index := uint32(value)
		if hardened {
			index |= HardenedOffset
		}

		indices = append(indices, index)
	}

	return indices, nil
}

// Purpose returns the BIP43 purpose of the path template (44, 49, 84, ...)
// without the hardened flag, or 0 if the path has no segments.
func (p PathType) Purpose() uint32 {
	indices, err := ParsePath(p.BasePath)
	if err != nil || len(indices) == 0 {
		return 0
	}
	return indices[0] &^ HardenedOffset
}

// AddressResponse is the result of an address request, produced fresh per
// call and never cached beyond the requesting process
type AddressResponse struct {
	Address   string `json:"address"`   // chain-canonical address encoding
	PublicKey string `json:"publicKey"` // hex-encoded public key
}

// AddressRequest asks for the address at pathType/pathIndex.
// ShowOnDevice requests an on-device confirmation; it is only honored when
// the request actually round-trips to the device (a cache hit derives
// locally and cannot prompt).
type AddressRequest struct {
	PathType     PathType
	PathIndex    uint32
	ShowOnDevice bool
}

// MessageSignType selects the Bitcoin message-signing scheme
type MessageSignType string

const (
	MessageSignLegacy       MessageSignType = "legacy"
	MessageSignBIP322Simple MessageSignType = "bip322-simple"
)

// SignMessageRequest asks for a personal-message signature
type SignMessageRequest struct {
	PathType  PathType
	PathIndex uint32
	Message   []byte
	Type      MessageSignType // Bitcoin only; empty means legacy
}

// Transaction is the tagged union of per-chain transaction payloads.
// The set of implementations is closed: UTXOTransaction, EVMTransaction
// and SolanaTransaction.
type Transaction interface {
	transaction()
}

// UTXOInput references an output of a previous transaction
type UTXOInput struct {
	Hash  string `json:"hash"`  // previous txid, big-endian hex as displayed
	Index uint32 `json:"index"` // output index in the previous transaction
}

// UTXOOutput is a spend target, either an address or a raw script.
// Script binds as a 0x-prefixed hex string on the wire.
type UTXOOutput struct {
	Value   uint64        `json:"value"` // amount in satoshi
	Address string        `json:"address,omitempty"`
	Script  hexutil.Bytes `json:"script,omitempty"`
}

// PSBT is the canonical in-memory representation of a partially-built
// transaction before vendor-specific serialization
type PSBT struct {
	Inputs  []UTXOInput  `json:"txInputs"`
	Outputs []UTXOOutput `json:"txOutputs"`
}

// UTXOTransaction carries the PSBT-like structure plus one raw previous
// transaction per input (required for legacy script verification)
type UTXOTransaction struct {
	PSBT   *PSBT    `json:"psbtTx"`
	RawTxs []string `json:"rawTxs"`
}

func (*UTXOTransaction) transaction() {}

// EVMTransaction covers both legacy and fee-market transactions.
// A non-nil GasPrice selects the legacy signing path; otherwise both
// MaxFeePerGas and MaxPriorityFeePerGas must be set (EIP-1559).
// Data binds as a 0x-prefixed hex string on the wire.
type EVMTransaction struct {
	To       string        `json:"to"`
	Value    *big.Int      `json:"value"`
	Nonce    uint64        `json:"nonce"`
	GasLimit uint64        `json:"gasLimit"`
	Data     hexutil.Bytes `json:"data,omitempty"`
	ChainID  int64         `json:"chainId"`

	GasPrice *big.Int `json:"gasPrice,omitempty"`

	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
}

func (*EVMTransaction) transaction() {}

// SolanaTransaction is passed to the device largely unmodified.
// SerializedTx binds as a 0x-prefixed hex string on the wire.
type SolanaTransaction struct {
	SerializedTx hexutil.Bytes `json:"serializedTx"`
}

func (*SolanaTransaction) transaction() {}

// SignTransactionRequest asks for a transaction signature at
// pathType/pathIndex
type SignTransactionRequest struct {
	PathType    PathType
	PathIndex   uint32
	Transaction Transaction
}

// SignTransactionResponse carries either a chain-canonical signature (EVM,
// Solana) or a fully serialized broadcast-ready transaction (UTXO chains)
type SignTransactionResponse struct {
	Signature    []byte `json:"signature,omitempty"`
	SerializedTx []byte `json:"serializedTx,omitempty"`
}

// SignTypedMessageRequest asks for an EIP-712 typed-data signature.
// Only meaningful for EVM chains.
type SignTypedMessageRequest struct {
	PathType  PathType
	PathIndex uint32
	TypedData apitypes.TypedData
}
