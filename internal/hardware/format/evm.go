package format

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github/chapool/go-hardware-signer/internal/hardware"
)

// BuildEVMTransaction 将请求交易转换为 go-ethereum 交易对象
// A non-nil gasPrice selects the legacy format; otherwise both fee-market
// fields are required and an EIP-1559 transaction is built.
func BuildEVMTransaction(tx *hardware.EVMTransaction) (*types.Transaction, error) {
	if tx == nil {
		return nil, hardware.MissingField("transaction")
	}
	if tx.ChainID <= 0 {
		return nil, hardware.MissingField("chainId")
	}

	var to *common.Address
	if tx.To != "" {
		if !common.IsHexAddress(tx.To) {
			return nil, errors.Errorf("invalid to address: %s", tx.To)
		}
		addr := common.HexToAddress(tx.To)
		to = &addr
	}

	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}

	if tx.GasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    tx.Nonce,
			GasPrice: tx.GasPrice,
			Gas:      tx.GasLimit,
			To:       to,
			Value:    value,
			Data:     tx.Data,
		}), nil
	}

	if tx.MaxFeePerGas == nil {
		return nil, hardware.MissingField("maxFeePerGas")
	}
	if tx.MaxPriorityFeePerGas == nil {
		return nil, hardware.MissingField("maxPriorityFeePerGas")
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(tx.ChainID),
		Nonce:     tx.Nonce,
		GasTipCap: tx.MaxPriorityFeePerGas,
		GasFeeCap: tx.MaxFeePerGas,
		Gas:       tx.GasLimit,
		To:        to,
		Value:     value,
		Data:      tx.Data,
	}), nil
}

// EncodeUnsignedEVM serializes the transaction in the form an external
// signer hashes: legacy transactions as the EIP-155 nine-field RLP list,
// fee-market transactions as the type byte followed by the payload list.
func EncodeUnsignedEVM(tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	switch tx.Type() {
	case types.LegacyTxType:
		encoded, err := rlp.EncodeToBytes([]interface{}{
			tx.Nonce(),
			tx.GasPrice(),
			tx.Gas(),
			tx.To(),
			tx.Value(),
			tx.Data(),
			chainID,
			big.NewInt(0),
			big.NewInt(0),
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode legacy transaction")
		}
		return encoded, nil

	case types.DynamicFeeTxType:
		payload, err := rlp.EncodeToBytes([]interface{}{
			chainID,
			tx.Nonce(),
			tx.GasTipCap(),
			tx.GasFeeCap(),
			tx.Gas(),
			tx.To(),
			tx.Value(),
			tx.Data(),
			tx.AccessList(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode fee-market transaction")
		}
		return append([]byte{types.DynamicFeeTxType}, payload...), nil

	default:
		return nil, errors.Errorf("unsupported transaction type: %d", tx.Type())
	}
}

// HashTypedData computes the EIP-712 domain separator hash and the primary
// struct hash locally, so devices that only accept the two digests can sign
// without receiving the full typed-data document
func HashTypedData(td apitypes.TypedData) (domainHash, messageHash []byte, err error) {
	domain, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to hash typed data domain")
	}

	message, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to hash typed data message")
	}

	return domain, message, nil
}
