package ledger

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/format"
	"github/chapool/go-hardware-signer/internal/hardware/pathcatalog"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

const solanaSignatureLength = 64

// SolanaDriver signs Solana transactions on an APDU device running the
// Solana app. Solana paths are fully hardened, so every address lookup is a
// device round-trip; personal and typed messages are not supported.
type SolanaDriver struct {
	session
}

// NewSolanaDriver 创建 Solana APDU 设备驱动
func NewSolanaDriver(device transport.Device) *SolanaDriver {
	return &SolanaDriver{session: newSession(device)}
}

func (d *SolanaDriver) Chain() hardware.Chain   { return hardware.ChainSolana }
func (d *SolanaDriver) Vendor() hardware.Vendor { return hardware.VendorLedger }

// Init opens the device channel
func (d *SolanaDriver) Init(ctx context.Context) error {
	return d.init(ctx)
}

// Close releases the device channel; repeated calls are harmless
func (d *SolanaDriver) Close(ctx context.Context) error {
	return d.close(ctx)
}

// SupportedPaths lists the Solana path templates of this vendor
func (d *SolanaDriver) SupportedPaths() []hardware.PathType {
	return pathcatalog.Paths(hardware.ChainSolana, hardware.VendorLedger)
}

// GetAddress fetches the ed25519 public key at the requested path; the
// base58 encoding of the key is the address
func (d *SolanaDriver) GetAddress(ctx context.Context, req hardware.AddressRequest) (*hardware.AddressResponse, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	data, err := serializePath(req.PathType.Resolve(req.PathIndex))
	if err != nil {
		return nil, err
	}

	p1 := byte(p1NoConfirm)
	if req.ShowOnDevice {
		p1 = p1Confirm
	}

	reply, err := d.device.Exchange(ctx, transport.APDU{
		CLA:  claEthereum,
		INS:  insSolGetPubkey,
		P1:   p1,
		Data: data,
	})
	if err != nil {
		return nil, hardware.FromTransportError(err)
	}
	if len(reply) != 32 {
		return nil, errors.Errorf("invalid public key reply length: %d", len(reply))
	}

	return &hardware.AddressResponse{
		Address:   base58.Encode(reply),
		PublicKey: sigutil.EncodeHex(reply),
	}, nil
}

// SignTransaction streams the serialized message to the device and returns
// the 64-byte ed25519 signature verbatim
func (d *SolanaDriver) SignTransaction(ctx context.Context, req hardware.SignTransactionRequest) (*hardware.SignTransactionResponse, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	solTx, ok := req.Transaction.(*hardware.SolanaTransaction)
	if !ok {
		return nil, errors.Wrapf(hardware.ErrUnsupportedOperation, "transaction variant %T not supported on solana", req.Transaction)
	}
	if err := format.ValidateSolanaTransaction(solTx); err != nil {
		return nil, err
	}

	path, err := serializePath(req.PathType.Resolve(req.PathIndex))
	if err != nil {
		return nil, err
	}

	reply, err := d.exchangeChunked(ctx, insSolSign, p2NoChainCode, append(path, solTx.SerializedTx...))
	if err != nil {
		return nil, err
	}
	if len(reply) != solanaSignatureLength {
		return nil, errors.Errorf("invalid signature reply length: %d", len(reply))
	}

	return &hardware.SignTransactionResponse{Signature: reply}, nil
}

// SignPersonalMessage is not part of the Solana app protocol
func (d *SolanaDriver) SignPersonalMessage(ctx context.Context, req hardware.SignMessageRequest) ([]byte, error) {
	return nil, errors.Wrap(hardware.ErrUnsupportedOperation, "personal messages are not supported on solana")
}

// SignTypedMessage is an EVM concept
func (d *SolanaDriver) SignTypedMessage(ctx context.Context, req hardware.SignTypedMessageRequest) ([]byte, error) {
	return nil, errors.Wrap(hardware.ErrUnsupportedOperation, "typed messages are not supported on solana")
}

var _ hardware.Driver = (*SolanaDriver)(nil)
