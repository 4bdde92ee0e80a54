package ledger_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip32"
	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/ledger"
	"github/chapool/go-hardware-signer/internal/hardware/transport"
)

type fakeDevice struct {
	opened  bool
	apdus   []transport.APDU
	replies [][]byte
	err     error
}

func (f *fakeDevice) Open(ctx context.Context) error {
	f.opened = true
	return nil
}

func (f *fakeDevice) Exchange(ctx context.Context, apdu transport.APDU) ([]byte, error) {
	f.apdus = append(f.apdus, apdu)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no reply queued")
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeDevice) Close(ctx context.Context) error {
	f.opened = false
	return nil
}

func (f *fakeDevice) Connected() bool { return f.opened }

func evmPathType() hardware.PathType {
	return hardware.PathType{BasePath: "m/44'/60'/0'/0", Path: "m/44'/60'/0'/0/{index}"}
}

func solanaPathType() hardware.PathType {
	return hardware.PathType{BasePath: "m/44'/501'", Path: "m/44'/501'/{index}'"}
}

// addressReply builds the get-address APDU reply: length-prefixed public
// key and ASCII address, optionally followed by the chain code
func addressReply(t *testing.T, pub []byte, address string, chainCode []byte) []byte {
	t.Helper()

	reply := []byte{byte(len(pub))}
	reply = append(reply, pub...)
	reply = append(reply, byte(len(address)))
	reply = append(reply, []byte(address)...)
	reply = append(reply, chainCode...)
	return reply
}

func testMasterUncompressed(t *testing.T) (*bip32.Key, []byte) {
	t.Helper()

	master, err := bip32.NewMasterKey(bytes.Repeat([]byte{0x09}, 32))
	require.NoError(t, err)

	pub, err := btcec.ParsePubKey(master.PublicKey().Key)
	require.NoError(t, err)

	return master, pub.SerializeUncompressed()
}

func testTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Mail": []apitypes.Type{
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Mail",
		Domain: apitypes.TypedDataDomain{
			Name:    "Chapool",
			ChainId: math.NewHexOrDecimal256(1),
		},
		Message: apitypes.TypedDataMessage{
			"contents": "gm",
		},
	}
}

func TestEVMDriverRequiresInit(t *testing.T) {
	driver := ledger.NewEVMDriver(&fakeDevice{})

	_, err := driver.GetAddress(context.Background(), hardware.AddressRequest{PathType: evmPathType()})
	assert.True(t, errors.Is(err, hardware.ErrTransportNotInitialized))
	assert.False(t, driver.IsConnected())
}

func TestEVMDriverAddressCaching(t *testing.T) {
	master, uncompressed := testMasterUncompressed(t)
	device := &fakeDevice{replies: [][]byte{
		addressReply(t, uncompressed, "ignored", master.PublicKey().ChainCode),
	}}
	driver := ledger.NewEVMDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))
	require.True(t, driver.IsConnected())

	for index := uint32(0); index < 3; index++ {
		res, err := driver.GetAddress(ctx, hardware.AddressRequest{PathType: evmPathType(), PathIndex: index})
		require.NoError(t, err)

		child, err := master.NewChildKey(index)
		require.NoError(t, err)
		pub, err := crypto.DecompressPubkey(child.PublicKey().Key)
		require.NoError(t, err)

		assert.Equal(t, crypto.PubkeyToAddress(*pub).Hex(), res.Address)
	}

	// exactly one APDU, requesting the chain code at the base path
	require.Len(t, device.apdus, 1)
	apdu := device.apdus[0]
	assert.Equal(t, byte(0x02), apdu.INS)
	assert.Equal(t, byte(0x01), apdu.P2)

	// path payload: depth 4, all indices big-endian
	require.Len(t, apdu.Data, 1+4*4)
	assert.Equal(t, byte(4), apdu.Data[0])
	assert.Equal(t, uint32(44)|hardware.HardenedOffset, binary.BigEndian.Uint32(apdu.Data[1:5]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(apdu.Data[13:17]))
}

func TestEVMDriverShowOnDevice(t *testing.T) {
	_, uncompressed := testMasterUncompressed(t)
	device := &fakeDevice{replies: [][]byte{
		addressReply(t, uncompressed, "000000000000000000000000000000000000dead", nil),
	}}
	driver := ledger.NewEVMDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	res, err := driver.GetAddress(ctx, hardware.AddressRequest{
		PathType:     evmPathType(),
		PathIndex:    1,
		ShowOnDevice: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "0x000000000000000000000000000000000000dead", res.Address)
	assert.Equal(t, hex.EncodeToString(uncompressed), res.PublicKey)

	require.Len(t, device.apdus, 1)
	assert.Equal(t, byte(0x01), device.apdus[0].P1) // confirm on device
	assert.Equal(t, byte(0x00), device.apdus[0].P2) // no chain code needed
	// full path including the index segment
	assert.Equal(t, byte(5), device.apdus[0].Data[0])
}

func TestEVMDriverSignTransactionLegacy(t *testing.T) {
	reply := append([]byte{38}, bytes.Repeat([]byte{0xcd}, 64)...)
	device := &fakeDevice{replies: [][]byte{reply}}
	driver := ledger.NewEVMDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	res, err := driver.SignTransaction(ctx, hardware.SignTransactionRequest{
		PathType: evmPathType(),
		Transaction: &hardware.EVMTransaction{
			To:       "0x000000000000000000000000000000000000dEaD",
			Value:    big.NewInt(1),
			GasLimit: 21000,
			ChainID:  1,
			GasPrice: big.NewInt(1000000000),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Signature, 65)
	assert.Equal(t, byte(1), res.Signature[64]) // 38 - (1*2+35)
	assert.Equal(t, bytes.Repeat([]byte{0xcd}, 32), res.Signature[:32])

	require.Len(t, device.apdus, 1)
	assert.Equal(t, byte(0x04), device.apdus[0].INS)
}

func TestEVMDriverSignTransactionFeeMarket(t *testing.T) {
	reply := append([]byte{0}, bytes.Repeat([]byte{0xef}, 64)...)
	device := &fakeDevice{replies: [][]byte{reply}}
	driver := ledger.NewEVMDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	res, err := driver.SignTransaction(ctx, hardware.SignTransactionRequest{
		PathType: evmPathType(),
		Transaction: &hardware.EVMTransaction{
			To:                   "0x000000000000000000000000000000000000dEaD",
			GasLimit:             21000,
			ChainID:              137,
			MaxFeePerGas:         big.NewInt(2000000000),
			MaxPriorityFeePerGas: big.NewInt(1000000000),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0), res.Signature[64])

	// typed transaction payload starts with the type byte after the path
	data := device.apdus[0].Data
	pathLen := 1 + 4*5
	assert.Equal(t, byte(0x02), data[pathLen])
}

func TestEVMDriverSignPersonalMessageChunks(t *testing.T) {
	message := bytes.Repeat([]byte{0x5a}, 300)
	reply := append([]byte{27}, bytes.Repeat([]byte{0xab}, 64)...)
	device := &fakeDevice{replies: [][]byte{reply}}
	driver := ledger.NewEVMDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	sig, err := driver.SignPersonalMessage(ctx, hardware.SignMessageRequest{
		PathType:  evmPathType(),
		PathIndex: 0,
		Message:   message,
	})
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Equal(t, byte(27), sig[64])

	// payload = path(21) + length(4) + message(300) = 325 -> two chunks
	require.Len(t, device.apdus, 2)
	assert.Equal(t, byte(0x00), device.apdus[0].P1)
	assert.Equal(t, byte(0x80), device.apdus[1].P1)
	assert.Len(t, device.apdus[0].Data, 255)
	assert.Len(t, device.apdus[1].Data, 70)

	// big-endian message length follows the path
	assert.Equal(t, uint32(300), binary.BigEndian.Uint32(device.apdus[0].Data[21:25]))
}

func TestEVMDriverSignTypedMessage(t *testing.T) {
	reply := append([]byte{28}, bytes.Repeat([]byte{0x77}, 64)...)
	device := &fakeDevice{replies: [][]byte{reply}}
	driver := ledger.NewEVMDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	sig, err := driver.SignTypedMessage(ctx, hardware.SignTypedMessageRequest{
		PathType:  evmPathType(),
		TypedData: testTypedData(),
	})
	require.NoError(t, err)
	assert.Equal(t, byte(28), sig[64])

	require.Len(t, device.apdus, 1)
	assert.Equal(t, byte(0x0c), device.apdus[0].INS)
	// path + two 32-byte digests
	assert.Len(t, device.apdus[0].Data, 21+64)
}

func TestSolanaDriverGetAddress(t *testing.T) {
	pubkey := bytes.Repeat([]byte{0x42}, 32)
	device := &fakeDevice{replies: [][]byte{pubkey}}
	driver := ledger.NewSolanaDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	res, err := driver.GetAddress(ctx, hardware.AddressRequest{PathType: solanaPathType(), PathIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pubkey), res.Address)
	assert.Equal(t, hex.EncodeToString(pubkey), res.PublicKey)

	// fully hardened path, every lookup hits the device
	_, err = driver.GetAddress(ctx, hardware.AddressRequest{PathType: solanaPathType(), PathIndex: 1})
	require.NoError(t, err)
	assert.Len(t, device.apdus, 2)
	assert.Equal(t, byte(0x05), device.apdus[0].INS)
}

func TestSolanaDriverSignTransaction(t *testing.T) {
	signature := bytes.Repeat([]byte{0x99}, 64)
	device := &fakeDevice{replies: [][]byte{signature}}
	driver := ledger.NewSolanaDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	res, err := driver.SignTransaction(ctx, hardware.SignTransactionRequest{
		PathType:    solanaPathType(),
		Transaction: &hardware.SolanaTransaction{SerializedTx: []byte{0x01, 0x02, 0x03}},
	})
	require.NoError(t, err)
	assert.Equal(t, signature, res.Signature)
	assert.Empty(t, res.SerializedTx)
	assert.Equal(t, byte(0x06), device.apdus[0].INS)
}

func TestSolanaDriverValidatesBeforeTransport(t *testing.T) {
	device := &fakeDevice{}
	driver := ledger.NewSolanaDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	_, err := driver.SignTransaction(ctx, hardware.SignTransactionRequest{
		PathType:    solanaPathType(),
		Transaction: &hardware.SolanaTransaction{},
	})
	assert.True(t, hardware.IsKind(err, hardware.KindMissingField))
	assert.Empty(t, device.apdus)
}

func TestSolanaDriverRejectsMessageSigning(t *testing.T) {
	device := &fakeDevice{}
	driver := ledger.NewSolanaDriver(device)

	ctx := context.Background()
	require.NoError(t, driver.Init(ctx))

	_, err := driver.SignPersonalMessage(ctx, hardware.SignMessageRequest{
		PathType: solanaPathType(),
		Message:  []byte("hello"),
	})
	assert.True(t, errors.Is(err, hardware.ErrUnsupportedOperation))

	_, err = driver.SignTypedMessage(ctx, hardware.SignTypedMessageRequest{PathType: solanaPathType()})
	assert.True(t, errors.Is(err, hardware.ErrUnsupportedOperation))
	assert.Empty(t, device.apdus)
}
