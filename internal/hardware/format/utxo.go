package format

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
	"github/chapool/go-hardware-signer/internal/hardware/sigutil"
)

// PreparedInput 为设备签名准备好的交易输入
// Amount and PrevScript come from the matched previous-transaction output;
// devices verify the spent amount against them.
type PreparedInput struct {
	PrevHash   string // normalized big-endian txid hex
	PrevIndex  uint32
	Amount     uint64
	PrevScript []byte
}

// PreparedOutput 为设备签名准备好的交易输出
type PreparedOutput struct {
	Amount   uint64
	AmountLE []byte // 8-byte little-endian amount, the on-wire form
	Script   []byte
}

// BuildUTXOInputs matches each input against the provided raw previous
// transactions and extracts the spent amount and script. All validation
// happens here, before any device interaction.
func BuildUTXOInputs(tx *hardware.UTXOTransaction) ([]PreparedInput, error) {
	if tx == nil || tx.PSBT == nil {
		return nil, hardware.MissingField("psbtTx")
	}
	if len(tx.PSBT.Inputs) == 0 {
		return nil, hardware.MissingField("txInputs")
	}
	if len(tx.RawTxs) == 0 {
		return nil, hardware.MissingField("rawTxs")
	}

	prevs := make(map[string]*wire.MsgTx, len(tx.RawTxs))
	for i, raw := range tx.RawTxs {
		decoded, err := sigutil.DecodeHex(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode raw transaction %d", i)
		}

		msg := wire.NewMsgTx(wire.TxVersion)
		if err := msg.Deserialize(bytes.NewReader(decoded)); err != nil {
			return nil, errors.Wrapf(err, "failed to deserialize raw transaction %d", i)
		}

		prevs[msg.TxHash().String()] = msg
	}

	inputs := make([]PreparedInput, 0, len(tx.PSBT.Inputs))
	for _, in := range tx.PSBT.Inputs {
		hash, err := chainhash.NewHashFromStr(in.Hash)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid input hash %s", in.Hash)
		}

		prev, ok := prevs[hash.String()]
		if !ok {
			return nil, errors.Errorf("previous transaction not provided for input %s", hash.String())
		}
		if in.Index >= uint32(len(prev.TxOut)) {
			return nil, errors.Errorf("input %s references output %d of a transaction with %d outputs", hash.String(), in.Index, len(prev.TxOut))
		}

		out := prev.TxOut[in.Index]
		inputs = append(inputs, PreparedInput{
			PrevHash:   hash.String(),
			PrevIndex:  in.Index,
			Amount:     uint64(out.Value),
			PrevScript: out.PkScript,
		})
	}

	return inputs, nil
}

// BuildUTXOOutputs resolves each spend target to an output script, either
// taking the raw script as given or deriving it from the address
func BuildUTXOOutputs(outputs []hardware.UTXOOutput, params *chaincfg.Params) ([]PreparedOutput, error) {
	if len(outputs) == 0 {
		return nil, hardware.MissingField("txOutputs")
	}

	prepared := make([]PreparedOutput, 0, len(outputs))
	for i, out := range outputs {
		script := out.Script
		if len(script) == 0 {
			if out.Address == "" {
				return nil, hardware.MissingField("address")
			}

			addr, err := btcutil.DecodeAddress(out.Address, params)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid output address %s", out.Address)
			}
			if !addr.IsForNet(params) {
				return nil, errors.Errorf("output address %s is not valid for network %s", out.Address, params.Name)
			}

			script, err = txscript.PayToAddrScript(addr)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to build script for output %d", i)
			}
		}

		prepared = append(prepared, PreparedOutput{
			Amount:   out.Value,
			AmountLE: amountLE(out.Value),
			Script:   script,
		})
	}

	return prepared, nil
}

func amountLE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
