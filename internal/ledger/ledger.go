// Package ledger defines the contract between the subscription flow and the
// remote ledger: the two contract endpoints, the read and write calls the flow
// issues, and the signing primitive supplied by the wallet.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WriteKind identifies one of the two state-mutating calls.
type WriteKind int

// Write kinds.
const (
	KindApprove WriteKind = iota
	KindSubscribe
)

// String returns the lowercase name of the write kind.
func (k WriteKind) String() string {
	switch k {
	case KindApprove:
		return "approve"
	case KindSubscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}

// WriteCall describes a write the signer must encode, sign and broadcast.
// Spender and Amount are only meaningful for KindApprove.
type WriteCall struct {
	Kind     WriteKind
	Contract common.Address
	Spender  common.Address
	Amount   *big.Int
}

// ApproveCall builds the token approval granting the subscription contract amount.
func ApproveCall(e Endpoints, amount *big.Int) WriteCall {
	return WriteCall{
		Kind:     KindApprove,
		Contract: e.Token,
		Spender:  e.Subscription,
		Amount:   new(big.Int).Set(amount),
	}
}

// SubscribeCall builds the subscribe call on the subscription contract.
func SubscribeCall(e Endpoints) WriteCall {
	return WriteCall{
		Kind:     KindSubscribe,
		Contract: e.Subscription,
	}
}

// Receipt is the inclusion result of a confirmed write.
type Receipt struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Reader issues the four pure queries.
type Reader interface {
	// EntitlementStatus reports whether subject currently holds an active subscription.
	EntitlementStatus(ctx context.Context, registry, subject common.Address) (bool, error)

	// TokenBalance returns subject's token balance in base units.
	TokenBalance(ctx context.Context, token, subject common.Address) (*big.Int, error)

	// SubscriptionFee returns the fee charged per subscription period in base units.
	SubscriptionFee(ctx context.Context, registry common.Address) (*big.Int, error)

	// Allowance returns the amount owner has authorized spender to transfer.
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Confirmer waits for a broadcast write to be included.
type Confirmer interface {
	// WaitForConfirmation blocks until the transaction is included, reverts, or ctx expires.
	// A revert returns errors.ErrTransactionReverted; an expired wait returns
	// errors.ErrConfirmationTimeout.
	WaitForConfirmation(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// Ledger is the full read and confirmation surface of the ledger service.
type Ledger interface {
	Reader
	Confirmer
}

// Signer is the only write primitive: request a signature for a call and broadcast it.
type Signer interface {
	// RequestSignature signs and broadcasts call, returning the transaction handle.
	// A user decline returns errors.ErrSignatureRejected.
	RequestSignature(ctx context.Context, call WriteCall) (common.Hash, error)
}
