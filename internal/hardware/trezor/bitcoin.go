package trezor

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/format"
	"github/chapool/go-hardware-signer/internal/hardware/hdcache"
	"github/chapool/go-hardware-signer/internal/hardware/pathcatalog"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

const (
	purposeLegacy = 44
	purposeSegwit = 84
)

// BitcoinDriver signs Bitcoin transactions and messages on a
// bridge-connected device
type BitcoinDriver struct {
	session
	params *chaincfg.Params
}

// NewBitcoinDriver 创建比特币桥接设备驱动
func NewBitcoinDriver(bridge transport.Bridge, params *chaincfg.Params) *BitcoinDriver {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &BitcoinDriver{
		session: newSession(bridge),
		params:  params,
	}
}

func (d *BitcoinDriver) Chain() hardware.Chain   { return hardware.ChainBitcoin }
func (d *BitcoinDriver) Vendor() hardware.Vendor { return hardware.VendorTrezor }

// Init acquires the bridge session
func (d *BitcoinDriver) Init(ctx context.Context) error {
	return d.init(ctx)
}

// Close releases the bridge session; repeated calls are harmless
func (d *BitcoinDriver) Close(ctx context.Context) error {
	return d.close(ctx)
}

// SupportedPaths lists the Bitcoin path templates of this vendor
func (d *BitcoinDriver) SupportedPaths() []hardware.PathType {
	return pathcatalog.Paths(hardware.ChainBitcoin, hardware.VendorTrezor)
}

type btcAddressPayload struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

// GetAddress resolves the address at the requested path. Non-hardened
// suffixes derive from the cached account key; on-device display forces a
// device round-trip.
func (d *BitcoinDriver) GetAddress(ctx context.Context, req hardware.AddressRequest) (*hardware.AddressResponse, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	hardened, err := req.PathType.HardenedSuffix()
	if err != nil {
		return nil, err
	}

	path := req.PathType.Resolve(req.PathIndex)

	if hardened || req.ShowOnDevice {
		var payload btcAddressPayload
		err := transport.CallAndDecode(ctx, d.bridge, "btcGetAddress", map[string]interface{}{
			"path":         path,
			"coin":         d.params.Name,
			"showOnDevice": req.ShowOnDevice,
		}, &payload)
		if err != nil {
			return nil, err
		}
		return &hardware.AddressResponse{Address: payload.Address, PublicKey: payload.PublicKey}, nil
	}

	node, err := d.nodeAt(ctx, "btcGetPublicKey", req.PathType.BasePath, map[string]interface{}{
		"coin": d.params.Name,
	})
	if err != nil {
		return nil, err
	}

	child, err := hdcache.DeriveChild(node, req.PathIndex)
	if err != nil {
		return nil, err
	}

	address, err := d.address(child, req.PathType.Purpose())
	if err != nil {
		return nil, err
	}

	return &hardware.AddressResponse{
		Address:   address,
		PublicKey: sigutil.EncodeHex(child.PublicKey()),
	}, nil
}

// address encodes the public key per the path's purpose field
func (d *BitcoinDriver) address(node hdcache.Node, purpose uint32) (string, error) {
	pkHash := btcutil.Hash160(node.PublicKey())

	switch purpose {
	case purposeLegacy:
		addr, err := btcutil.NewAddressPubKeyHash(pkHash, d.params)
		if err != nil {
			return "", errors.Wrap(err, "failed to build p2pkh address")
		}
		return addr.EncodeAddress(), nil
	case purposeSegwit:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, d.params)
		if err != nil {
			return "", errors.Wrap(err, "failed to build p2wpkh address")
		}
		return addr.EncodeAddress(), nil
	default:
		return "", errors.Errorf("unsupported purpose: %d", purpose)
	}
}

type btcSignMessagePayload struct {
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

// SignPersonalMessage signs a message in the legacy signed-message scheme
// or BIP-322 simple. BIP-322 is only defined here for segwit paths.
func (d *BitcoinDriver) SignPersonalMessage(ctx context.Context, req hardware.SignMessageRequest) ([]byte, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}
	if len(req.Message) == 0 {
		return nil, hardware.MissingField("message")
	}

	signType := req.Type
	if signType == "" {
		signType = hardware.MessageSignLegacy
	}
	if signType == hardware.MessageSignBIP322Simple && req.PathType.Purpose() != purposeSegwit {
		return nil, errors.Wrap(hardware.ErrUnsupportedOperation, "bip322-simple requires a segwit path")
	}

	var payload btcSignMessagePayload
	err := transport.CallAndDecode(ctx, d.bridge, "btcSignMessage", map[string]interface{}{
		"path":     req.PathType.Resolve(req.PathIndex),
		"coin":     d.params.Name,
		"message":  hex.EncodeToString(req.Message),
		"signType": string(signType),
	}, &payload)
	if err != nil {
		return nil, err
	}

	sig, err := decodeHexField(payload.Signature, "signature")
	if err != nil {
		return nil, err
	}

	if signType == hardware.MessageSignBIP322Simple {
		// BIP-322 signatures are full witness stacks, passed through verbatim
		return sig, nil
	}

	return normalizeBitcoinSignature(sig)
}

// normalizeBitcoinSignature re-derives the header byte so the recovery id
// and compression flag are encoded canonically regardless of firmware
func normalizeBitcoinSignature(sig []byte) ([]byte, error) {
	header, r, s, err := sigutil.SplitBitcoinSignature(sig)
	if err != nil {
		return nil, err
	}
	if header < 27 {
		return nil, errors.Errorf("invalid signature header: %d", header)
	}

	recovery := (header - 27) & 0x03
	// hardware devices always sign with compressed keys
	normalized, err := sigutil.BitcoinHeader(recovery, true)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, sigutil.RecoverableLength)
	out = append(out, normalized)
	out = append(out, r...)
	out = append(out, s...)
	return out, nil
}

type btcInputParam struct {
	PrevHash  string `json:"prevHash"`
	PrevIndex uint32 `json:"prevIndex"`
	Amount    uint64 `json:"amount"`
	Path      string `json:"path"`
}

type btcOutputParam struct {
	Amount uint64 `json:"amount"`
	Script string `json:"script"`
}

type btcSignTransactionPayload struct {
	SerializedTx string `json:"serializedTx"`
}

// SignTransaction builds the device signing request from the PSBT structure
// and raw previous transactions, then returns the broadcast-ready
// serialized transaction produced by the device
func (d *BitcoinDriver) SignTransaction(ctx context.Context, req hardware.SignTransactionRequest) (*hardware.SignTransactionResponse, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	tx, ok := req.Transaction.(*hardware.UTXOTransaction)
	if !ok {
		return nil, errors.Wrapf(hardware.ErrUnsupportedOperation, "transaction variant %T not supported on bitcoin", req.Transaction)
	}

	// all request validation happens before the device is touched
	inputs, err := format.BuildUTXOInputs(tx)
	if err != nil {
		return nil, err
	}
	outputs, err := format.BuildUTXOOutputs(tx.PSBT.Outputs, d.params)
	if err != nil {
		return nil, err
	}

	path := req.PathType.Resolve(req.PathIndex)

	inputParams := make([]btcInputParam, 0, len(inputs))
	for _, in := range inputs {
		inputParams = append(inputParams, btcInputParam{
			PrevHash:  in.PrevHash,
			PrevIndex: in.PrevIndex,
			Amount:    in.Amount,
			Path:      path,
		})
	}

	outputParams := make([]btcOutputParam, 0, len(outputs))
	for _, out := range outputs {
		outputParams = append(outputParams, btcOutputParam{
			Amount: out.Amount,
			Script: hex.EncodeToString(out.Script),
		})
	}

	var payload btcSignTransactionPayload
	err = transport.CallAndDecode(ctx, d.bridge, "btcSignTransaction", map[string]interface{}{
		"coin":    d.params.Name,
		"inputs":  inputParams,
		"outputs": outputParams,
		"refTxs":  tx.RawTxs,
	}, &payload)
	if err != nil {
		return nil, err
	}

	serialized, err := decodeHexField(payload.SerializedTx, "serializedTx")
	if err != nil {
		return nil, err
	}

	return &hardware.SignTransactionResponse{SerializedTx: serialized}, nil
}

// SignTypedMessage is an EVM concept; Bitcoin devices reject it without a
// device round-trip
func (d *BitcoinDriver) SignTypedMessage(ctx context.Context, req hardware.SignTypedMessageRequest) ([]byte, error) {
	return nil, errors.Wrap(hardware.ErrUnsupportedOperation, "typed messages are not supported on bitcoin")
}

var _ hardware.Driver = (*BitcoinDriver)(nil)
