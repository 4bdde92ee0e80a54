package trezor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/format"
	"github/chapool/go-hardware-signer/internal/hardware/hdcache"
	"github/chapool/go-hardware-signer/internal/hardware/pathcatalog"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

// EVMDriver signs Ethereum-family transactions and messages on a
// bridge-connected device
type EVMDriver struct {
	session
}

// NewEVMDriver 创建以太坊桥接设备驱动
func NewEVMDriver(bridge transport.Bridge) *EVMDriver {
	return &EVMDriver{session: newSession(bridge)}
}

func (d *EVMDriver) Chain() hardware.Chain   { return hardware.ChainEthereum }
func (d *EVMDriver) Vendor() hardware.Vendor { return hardware.VendorTrezor }

// Init acquires the bridge session
func (d *EVMDriver) Init(ctx context.Context) error {
	return d.init(ctx)
}

// Close releases the bridge session; repeated calls are harmless
func (d *EVMDriver) Close(ctx context.Context) error {
	return d.close(ctx)
}

// SupportedPaths lists the Ethereum path templates of this vendor
func (d *EVMDriver) SupportedPaths() []hardware.PathType {
	return pathcatalog.Paths(hardware.ChainEthereum, hardware.VendorTrezor)
}

type evmAddressPayload struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

// GetAddress resolves the address at the requested path, deriving locally
// from the cached account key whenever possible
func (d *EVMDriver) GetAddress(ctx context.Context, req hardware.AddressRequest) (*hardware.AddressResponse, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	hardened, err := req.PathType.HardenedSuffix()
	if err != nil {
		return nil, err
	}

	if hardened || req.ShowOnDevice {
		var payload evmAddressPayload
		err := transport.CallAndDecode(ctx, d.bridge, "evmGetAddress", map[string]interface{}{
			"path":         req.PathType.Resolve(req.PathIndex),
			"showOnDevice": req.ShowOnDevice,
		}, &payload)
		if err != nil {
			return nil, err
		}
		return &hardware.AddressResponse{Address: payload.Address, PublicKey: payload.PublicKey}, nil
	}

	node, err := d.nodeAt(ctx, "evmGetPublicKey", req.PathType.BasePath, nil)
	if err != nil {
		return nil, err
	}

	child, err := hdcache.DeriveChild(node, req.PathIndex)
	if err != nil {
		return nil, err
	}

	address, err := evmAddress(child)
	if err != nil {
		return nil, err
	}

	return &hardware.AddressResponse{
		Address:   address,
		PublicKey: sigutil.EncodeHex(child.PublicKey()),
	}, nil
}

// evmAddress derives the EIP-55 checksummed address from a compressed key
func evmAddress(node hdcache.Node) (string, error) {
	pub, err := crypto.DecompressPubkey(node.PublicKey())
	if err != nil {
		return "", errors.Wrap(err, "failed to decompress public key")
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

type evmSignaturePayload struct {
	Signature string `json:"signature"`
}

// SignPersonalMessage signs a message in the personal_sign scheme. The
// returned v byte is normalized to the canonical 27/28 form.
func (d *EVMDriver) SignPersonalMessage(ctx context.Context, req hardware.SignMessageRequest) ([]byte, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}
	if len(req.Message) == 0 {
		return nil, hardware.MissingField("message")
	}

	var payload evmSignaturePayload
	err := transport.CallAndDecode(ctx, d.bridge, "evmSignMessage", map[string]interface{}{
		"path":    req.PathType.Resolve(req.PathIndex),
		"message": hexutil.Encode(req.Message),
	}, &payload)
	if err != nil {
		return nil, err
	}

	return decodeRecoverableSignature(payload.Signature)
}

func decodeRecoverableSignature(signature string) ([]byte, error) {
	// a device that answers without a signature cannot sign this message
	if signature == "" {
		return nil, errors.Wrap(hardware.ErrUnsupportedOperation, "device returned no signature")
	}

	sig, err := decodeHexField(signature, "signature")
	if err != nil {
		return nil, err
	}
	if len(sig) != sigutil.RecoverableLength {
		return nil, errors.Errorf("invalid signature length: %d", len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

type evmSignTxPayload struct {
	V uint64 `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// SignTransaction signs a legacy or fee-market transaction and returns the
// canonical 65-byte r||s||v signature with a 0/1 recovery id
func (d *EVMDriver) SignTransaction(ctx context.Context, req hardware.SignTransactionRequest) (*hardware.SignTransactionResponse, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	evmTx, ok := req.Transaction.(*hardware.EVMTransaction)
	if !ok {
		return nil, errors.Wrapf(hardware.ErrUnsupportedOperation, "transaction variant %T not supported on ethereum", req.Transaction)
	}

	tx, err := format.BuildEVMTransaction(evmTx)
	if err != nil {
		return nil, err
	}

	chainID := big.NewInt(evmTx.ChainID)
	rawTx, err := format.EncodeUnsignedEVM(tx, chainID)
	if err != nil {
		return nil, err
	}

	var payload evmSignTxPayload
	err = transport.CallAndDecode(ctx, d.bridge, "evmSignTransaction", map[string]interface{}{
		"path":    req.PathType.Resolve(req.PathIndex),
		"rawTx":   hexutil.Encode(rawTx),
		"chainId": evmTx.ChainID,
	}, &payload)
	if err != nil {
		return nil, err
	}

	var recovery byte
	if tx.Type() == types.LegacyTxType {
		recovery, err = sigutil.LegacyRecoveryID(payload.V, evmTx.ChainID)
	} else {
		recovery, err = sigutil.FeeMarketRecoveryID(payload.V)
	}
	if err != nil {
		return nil, err
	}

	r, err := decodeHexField(payload.R, "r")
	if err != nil {
		return nil, err
	}
	s, err := decodeHexField(payload.S, "s")
	if err != nil {
		return nil, err
	}

	sig, err := sigutil.AssembleRecoverable(r, s, recovery)
	if err != nil {
		return nil, err
	}

	return &hardware.SignTransactionResponse{Signature: sig}, nil
}

// SignTypedMessage hashes the EIP-712 document locally and sends only the
// two digests, so older firmware without full typed-data support can sign
func (d *EVMDriver) SignTypedMessage(ctx context.Context, req hardware.SignTypedMessageRequest) ([]byte, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	domainHash, messageHash, err := format.HashTypedData(req.TypedData)
	if err != nil {
		return nil, err
	}

	var payload evmSignaturePayload
	err = transport.CallAndDecode(ctx, d.bridge, "evmSignTypedData", map[string]interface{}{
		"path":                req.PathType.Resolve(req.PathIndex),
		"domainSeparatorHash": hexutil.Encode(domainHash),
		"messageHash":         hexutil.Encode(messageHash),
		"metamaskV4Compat":    true,
	}, &payload)
	if err != nil {
		return nil, err
	}

	return decodeRecoverableSignature(payload.Signature)
}

var _ hardware.Driver = (*EVMDriver)(nil)
