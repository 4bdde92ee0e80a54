package ledger

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/format"
	"github/chapool/go-hardware-signer/internal/hardware/hdcache"
	"github/chapool/go-hardware-signer/internal/hardware/pathcatalog"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

// EVMDriver signs Ethereum-family transactions and messages on an APDU
// device running the Ethereum app
type EVMDriver struct {
	session
}

// NewEVMDriver 创建以太坊 APDU 设备驱动
func NewEVMDriver(device transport.Device) *EVMDriver {
	return &EVMDriver{session: newSession(device)}
}

func (d *EVMDriver) Chain() hardware.Chain   { return hardware.ChainEthereum }
func (d *EVMDriver) Vendor() hardware.Vendor { return hardware.VendorLedger }

// Init opens the device channel
func (d *EVMDriver) Init(ctx context.Context) error {
	return d.init(ctx)
}

// Close releases the device channel; repeated calls are harmless
func (d *EVMDriver) Close(ctx context.Context) error {
	return d.close(ctx)
}

// SupportedPaths lists the Ethereum path templates of this vendor
func (d *EVMDriver) SupportedPaths() []hardware.PathType {
	return pathcatalog.Paths(hardware.ChainEthereum, hardware.VendorLedger)
}

// GetAddress resolves the address at the requested path. The extended key
// of the base path is fetched once with the chain code and children derive
// locally; on-device display forces a full-path round-trip.
func (d *EVMDriver) GetAddress(ctx context.Context, req hardware.AddressRequest) (*hardware.AddressResponse, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	hardened, err := req.PathType.HardenedSuffix()
	if err != nil {
		return nil, err
	}

	if hardened || req.ShowOnDevice {
		return d.fetchAddress(ctx, req.PathType.Resolve(req.PathIndex), req.ShowOnDevice)
	}

	node, err := d.nodeAt(ctx, req.PathType.BasePath)
	if err != nil {
		return nil, err
	}

	child, err := hdcache.DeriveChild(node, req.PathIndex)
	if err != nil {
		return nil, err
	}

	pub, err := crypto.DecompressPubkey(child.PublicKey())
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress public key")
	}

	return &hardware.AddressResponse{
		Address:   crypto.PubkeyToAddress(*pub).Hex(),
		PublicKey: sigutil.EncodeHex(child.PublicKey()),
	}, nil
}

func (d *EVMDriver) fetchAddress(ctx context.Context, path string, confirm bool) (*hardware.AddressResponse, error) {
	data, err := serializePath(path)
	if err != nil {
		return nil, err
	}

	p1 := byte(p1NoConfirm)
	if confirm {
		p1 = p1Confirm
	}

	reply, err := d.device.Exchange(ctx, transport.APDU{
		CLA:  claEthereum,
		INS:  insGetAddress,
		P1:   p1,
		P2:   p2NoChainCode,
		Data: data,
	})
	if err != nil {
		return nil, hardware.FromTransportError(err)
	}

	pub, address, _, err := parseAddressReply(reply, false)
	if err != nil {
		return nil, err
	}

	return &hardware.AddressResponse{
		Address:   "0x" + address,
		PublicKey: sigutil.EncodeHex(pub),
	}, nil
}

// nodeAt fetches the extended public key at basePath (with chain code) on
// the first request and serves the cache afterwards
func (d *EVMDriver) nodeAt(ctx context.Context, basePath string) (hdcache.Node, error) {
	if node, ok := d.cache.Get(basePath); ok {
		return node, nil
	}

	data, err := serializePath(basePath)
	if err != nil {
		return hdcache.Node{}, err
	}

	reply, err := d.device.Exchange(ctx, transport.APDU{
		CLA:  claEthereum,
		INS:  insGetAddress,
		P1:   p1NoConfirm,
		P2:   p2ChainCode,
		Data: data,
	})
	if err != nil {
		return hdcache.Node{}, hardware.FromTransportError(err)
	}

	pub, _, chainCode, err := parseAddressReply(reply, true)
	if err != nil {
		return hdcache.Node{}, err
	}

	node, err := hdcache.NewNode(pub, chainCode)
	if err != nil {
		return hdcache.Node{}, errors.Wrap(err, "device returned invalid key material")
	}

	d.cache.Populate(basePath, node)
	return node, nil
}

// parseAddressReply unpacks the get-address reply: public key and ASCII
// address with 1-byte length prefixes, optionally followed by the 32-byte
// chain code
func parseAddressReply(reply []byte, withChainCode bool) (pub []byte, address string, chainCode []byte, err error) {
	if len(reply) < 1 || len(reply) < 1+int(reply[0]) {
		return nil, "", nil, errors.New("address reply truncated at public key")
	}
	pub = reply[1 : 1+int(reply[0])]
	rest := reply[1+int(reply[0]):]

	if len(rest) < 1 || len(rest) < 1+int(rest[0]) {
		return nil, "", nil, errors.New("address reply truncated at address")
	}
	address = string(rest[1 : 1+int(rest[0])])
	rest = rest[1+int(rest[0]):]

	if withChainCode {
		if len(rest) < 32 {
			return nil, "", nil, errors.New("address reply truncated at chain code")
		}
		chainCode = rest[:32]
	}

	return pub, address, chainCode, nil
}

// SignPersonalMessage signs a message in the personal_sign scheme; the
// device returns v as 27/28 which is kept verbatim
func (d *EVMDriver) SignPersonalMessage(ctx context.Context, req hardware.SignMessageRequest) ([]byte, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}
	if len(req.Message) == 0 {
		return nil, hardware.MissingField("message")
	}

	path, err := serializePath(req.PathType.Resolve(req.PathIndex))
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(path)+4+len(req.Message))
	payload = append(payload, path...)
	payload = binary.BigEndian.AppendUint32(payload, uint32(len(req.Message)))
	payload = append(payload, req.Message...)

	reply, err := d.exchangeChunked(ctx, insSignPersonal, p2NoChainCode, payload)
	if err != nil {
		return nil, err
	}

	return reorderVRS(reply)
}

// SignTransaction streams the unsigned transaction to the device and
// normalizes the reply into the canonical 65-byte r||s||v signature with a
// 0/1 recovery id
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

	rawTx, err := format.EncodeUnsignedEVM(tx, big.NewInt(evmTx.ChainID))
	if err != nil {
		return nil, err
	}

	path, err := serializePath(req.PathType.Resolve(req.PathIndex))
	if err != nil {
		return nil, err
	}

	reply, err := d.exchangeChunked(ctx, insSignTransaction, p2NoChainCode, append(path, rawTx...))
	if err != nil {
		return nil, err
	}
	if len(reply) != sigutil.RecoverableLength {
		return nil, errors.Errorf("invalid signature reply length: %d", len(reply))
	}

	var recovery byte
	if evmTx.GasPrice != nil {
		// the device folds EIP-155 into a single byte, so unfold mod 256
		recovery = reply[0] - byte((uint64(evmTx.ChainID)*2+35)&0xff)
	} else {
		recovery = reply[0]
		if recovery >= 27 {
			recovery -= 27
		}
	}
	if recovery > 1 {
		return nil, errors.Errorf("invalid recovery id in device reply: %d", recovery)
	}

	sig, err := sigutil.AssembleRecoverable(reply[1:33], reply[33:65], recovery)
	if err != nil {
		return nil, err
	}

	return &hardware.SignTransactionResponse{Signature: sig}, nil
}

// SignTypedMessage sends the EIP-712 domain and message digests; the
// device never sees the full document
func (d *EVMDriver) SignTypedMessage(ctx context.Context, req hardware.SignTypedMessageRequest) ([]byte, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	domainHash, messageHash, err := format.HashTypedData(req.TypedData)
	if err != nil {
		return nil, err
	}

	path, err := serializePath(req.PathType.Resolve(req.PathIndex))
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(path)+64)
	payload = append(payload, path...)
	payload = append(payload, domainHash...)
	payload = append(payload, messageHash...)

	reply, err := d.exchangeChunked(ctx, insSignTypedMessage, p2NoChainCode, payload)
	if err != nil {
		return nil, err
	}

	return reorderVRS(reply)
}

// reorderVRS converts the device's v||r||s reply into r||s||v
func reorderVRS(reply []byte) ([]byte, error) {
	if len(reply) != sigutil.RecoverableLength {
		return nil, errors.Errorf("invalid signature reply length: %d", len(reply))
	}

	sig := make([]byte, 0, sigutil.RecoverableLength)
	sig = append(sig, reply[1:]...)
	sig = append(sig, reply[0])
	return sig, nil
}

var _ hardware.Driver = (*EVMDriver)(nil)
