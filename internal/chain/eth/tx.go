package eth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// TxParams contains parameters for building a contract call transaction.
type TxParams struct {
	From     common.Address // Sender
	To       common.Address // Contract
	Value    *big.Int       // Value in wei (always 0 for this flow)
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
	ChainID  *big.Int
	Data     []byte
}

// Validate checks that the transaction parameters are valid.
func (p *TxParams) Validate() error {
	if p.To == (common.Address{}) {
		return suberr.WithDetails(suberr.ErrInvalidAddress, map[string]string{
			"field":   "to",
			"address": p.To.Hex(),
		})
	}
	if p.Value == nil || p.Value.Sign() < 0 {
		return suberr.WithDetails(suberr.ErrInvalidAmount, map[string]string{
			"reason": "value must be non-negative",
		})
	}
	if p.GasPrice == nil || p.GasPrice.Sign() <= 0 {
		return suberr.ErrInvalidGasPrice
	}
	if p.ChainID == nil || p.ChainID.Sign() <= 0 {
		return suberr.ErrInvalidChainID
	}
	if p.GasLimit == 0 {
		return suberr.ErrInvalidGasLimit
	}
	return nil
}

// EncodeWriteCall returns the calldata for a write call.
func EncodeWriteCall(call ledger.WriteCall) ([]byte, error) {
	switch call.Kind {
	case ledger.KindApprove:
		if call.Amount == nil || call.Amount.Sign() < 0 {
			return nil, suberr.WithDetails(suberr.ErrInvalidAmount, map[string]string{
				"reason": "approve amount must be non-negative",
			})
		}
		return EncodeApprove(call.Spender, call.Amount), nil
	case ledger.KindSubscribe:
		return EncodeSubscribe(), nil
	default:
		return nil, suberr.WithDetails(suberr.ErrInvalidInput, map[string]string{
			"kind": call.Kind.String(),
		})
	}
}

// BuildTransaction creates an unsigned legacy transaction from parameters.
func BuildTransaction(params *TxParams) (*types.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	to := params.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    params.Nonce,
		To:       &to,
		Value:    params.Value,
		Gas:      params.GasLimit,
		GasPrice: params.GasPrice,
		Data:     params.Data,
	}), nil
}

// SignTransaction signs a transaction with EIP-155 replay protection.
// The private key bytes are left untouched; callers own their lifetime.
func SignTransaction(tx *types.Transaction, privateKey []byte, chainID *big.Int) (*types.Transaction, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	defer zeroECDSA(key)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	return signedTx, nil
}

// DeriveAddress derives an Ethereum address from a private key.
func DeriveAddress(privateKey []byte) (common.Address, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return common.Address{}, suberr.WithCause(suberr.ErrInvalidInput, fmt.Errorf("parsing private key: %w", err))
	}
	defer zeroECDSA(key)

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, suberr.ErrInvalidInput
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// zeroECDSA clears the scalar of a parsed key.
func zeroECDSA(key *ecdsa.PrivateKey) {
	if key != nil && key.D != nil {
		key.D.SetInt64(0)
	}
}
