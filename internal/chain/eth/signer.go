package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// PrivateKey is key material the signer can read and finally destroy.
// Satisfied by *keystore.SecureBytes.
type PrivateKey interface {
	Bytes() []byte
	Destroy()
}

// SignRequest describes a transaction awaiting the user's go-ahead.
type SignRequest struct {
	Call     ledger.WriteCall
	From     common.Address
	ChainID  *big.Int
	GasPrice *big.Int
	GasLimit uint64
}

// MaxGasCost is the most the transaction can spend on gas, in wei.
func (r SignRequest) MaxGasCost() *big.Int {
	return new(big.Int).Mul(r.GasPrice, new(big.Int).SetUint64(r.GasLimit))
}

// Approver decides whether a prepared transaction may be signed.
// Returning false declines the signature.
type Approver func(ctx context.Context, req SignRequest) (bool, error)

// SignerOptions configures a KeySigner.
type SignerOptions struct {
	Speed    GasSpeed
	Approver Approver
	Logger   Logger
}

// Compile-time interface checks
var _ ledger.Signer = (*KeySigner)(nil)

// KeySigner signs and broadcasts writes with a locally held key.
type KeySigner struct {
	client   *Client
	key      PrivateKey
	from     common.Address
	speed    GasSpeed
	approver Approver
	nonces   *NonceManager
	logger   Logger
}

// NewKeySigner creates a signer for key against client's node.
func NewKeySigner(client *Client, key PrivateKey, opts SignerOptions) (*KeySigner, error) {
	from, err := DeriveAddress(key.Bytes())
	if err != nil {
		return nil, err
	}

	s := &KeySigner{
		client:   client,
		key:      key,
		from:     from,
		speed:    opts.Speed,
		approver: opts.Approver,
		nonces:   NewNonceManager(),
		logger:   opts.Logger,
	}
	if s.speed == "" {
		s.speed = GasSpeedMedium
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s, nil
}

// Address returns the signing address.
func (s *KeySigner) Address() common.Address {
	return s.from
}

// RequestSignature prepares call, asks the approver, then signs and broadcasts it.
// A decline returns errors.ErrSignatureRejected without consuming a nonce;
// every other failure returns errors.ErrBroadcast.
func (s *KeySigner) RequestSignature(ctx context.Context, call ledger.WriteCall) (common.Hash, error) {
	data, err := EncodeWriteCall(call)
	if err != nil {
		return common.Hash{}, suberr.WithCause(suberr.ErrBroadcast, err)
	}

	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, suberr.WithCause(suberr.ErrBroadcast, err)
	}

	gasPrice, err := s.client.GasPrice(ctx, s.speed)
	if err != nil {
		return common.Hash{}, suberr.WithCause(suberr.ErrBroadcast, err)
	}

	req := SignRequest{
		Call:     call,
		From:     s.from,
		ChainID:  chainID,
		GasPrice: gasPrice,
		GasLimit: s.client.EstimateGasLimit(ctx, s.from, call, data),
	}

	if s.approver != nil {
		ok, err := s.approver(ctx, req)
		if err != nil {
			return common.Hash{}, suberr.WithCause(suberr.ErrSignatureRejected, err)
		}
		if !ok {
			s.logger.Debug("%s signature declined", call.Kind)
			return common.Hash{}, suberr.ErrSignatureRejected
		}
	}

	hash, err := s.send(ctx, req, data)
	if err != nil {
		s.nonces.Reset(s.from)
		return common.Hash{}, suberr.WithCause(suberr.ErrBroadcast, err)
	}
	return hash, nil
}

func (s *KeySigner) send(ctx context.Context, req SignRequest, data []byte) (common.Hash, error) {
	pending, err := s.client.rpcClient.GetTransactionCount(ctx, s.from.Hex(), "pending")
	if err != nil {
		return common.Hash{}, fmt.Errorf("getting nonce: %w", err)
	}

	tx, err := BuildTransaction(&TxParams{
		From:     s.from,
		To:       req.Call.Contract,
		Value:    big.NewInt(0),
		GasLimit: req.GasLimit,
		GasPrice: req.GasPrice,
		Nonce:    s.nonces.Next(s.from, pending),
		ChainID:  req.ChainID,
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := SignTransaction(tx, s.key.Bytes(), req.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding transaction: %w", err)
	}

	if _, err = s.client.rpcClient.SendRawTransaction(ctx, raw); err != nil {
		return common.Hash{}, fmt.Errorf("broadcasting transaction: %w", err)
	}

	s.logger.Debug("%s sent as %s (nonce %d, gas %d at %s)",
		req.Call.Kind, signed.Hash().Hex(), signed.Nonce(), req.GasLimit, FormatGasPrice(req.GasPrice))
	return signed.Hash(), nil
}

// Close destroys the key material.
func (s *KeySigner) Close() {
	s.key.Destroy()
}
