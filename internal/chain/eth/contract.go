package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// wordSize is the size of one ABI word.
const wordSize = 32

// Function signatures the adapter calls.
const (
	SigBalanceOf          = "balanceOf(address)"
	SigAllowance          = "allowance(address,address)"
	SigApprove            = "approve(address,uint256)"
	SigIsSubscriberActive = "isSubscriberActive(address)"
	SigSubscriptionFee    = "subscriptionFee()"
	SigSubscribe          = "subscribe()"
	SigPaymentToken       = "pyusdToken()"
)

//nolint:gochecknoglobals // ABI selectors
var (
	selectorBalanceOf          = Selector(SigBalanceOf)
	selectorAllowance          = Selector(SigAllowance)
	selectorApprove            = Selector(SigApprove)
	selectorIsSubscriberActive = Selector(SigIsSubscriberActive)
	selectorSubscriptionFee    = Selector(SigSubscriptionFee)
	selectorSubscribe          = Selector(SigSubscribe)
	selectorPaymentToken       = Selector(SigPaymentToken)
)

// ErrMalformedResult indicates a call returned fewer bytes than its ABI type needs.
var ErrMalformedResult = &suberr.SubpassError{
	Code:     "ETH_MALFORMED_RESULT",
	Message:  "contract call returned a malformed result",
	ExitCode: suberr.ExitGeneral,
}

// Selector returns the 4-byte function selector for a canonical signature.
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// encodeCall concatenates a selector with 32-byte argument words.
func encodeCall(selector []byte, words ...[]byte) []byte {
	data := make([]byte, 4, 4+len(words)*wordSize)
	copy(data, selector)
	for _, w := range words {
		data = append(data, w...)
	}
	return data
}

func addressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), wordSize)
}

func uintWord(v *big.Int) []byte {
	if v == nil {
		return make([]byte, wordSize)
	}
	return common.LeftPadBytes(v.Bytes(), wordSize)
}

// EncodeBalanceOf builds balanceOf(owner).
func EncodeBalanceOf(owner common.Address) []byte {
	return encodeCall(selectorBalanceOf, addressWord(owner))
}

// EncodeAllowance builds allowance(owner, spender).
func EncodeAllowance(owner, spender common.Address) []byte {
	return encodeCall(selectorAllowance, addressWord(owner), addressWord(spender))
}

// EncodeApprove builds approve(spender, amount).
func EncodeApprove(spender common.Address, amount *big.Int) []byte {
	return encodeCall(selectorApprove, addressWord(spender), uintWord(amount))
}

// EncodeIsSubscriberActive builds isSubscriberActive(subject).
func EncodeIsSubscriberActive(subject common.Address) []byte {
	return encodeCall(selectorIsSubscriberActive, addressWord(subject))
}

// EncodeSubscriptionFee builds subscriptionFee().
func EncodeSubscriptionFee() []byte {
	return encodeCall(selectorSubscriptionFee)
}

// EncodeSubscribe builds subscribe().
func EncodeSubscribe() []byte {
	return encodeCall(selectorSubscribe)
}

// EncodePaymentToken builds pyusdToken().
func EncodePaymentToken() []byte {
	return encodeCall(selectorPaymentToken)
}

func firstWord(result []byte, abiType string) ([]byte, error) {
	if len(result) < wordSize {
		return nil, suberr.WithDetails(ErrMalformedResult, map[string]string{
			"type":  abiType,
			"bytes": big.NewInt(int64(len(result))).String(),
		})
	}
	return result[:wordSize], nil
}

// DecodeUint256 decodes the first word of result as an unsigned integer.
func DecodeUint256(result []byte) (*big.Int, error) {
	w, err := firstWord(result, "uint256")
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

// DecodeBool decodes the first word of result as a bool.
// Any word other than 0 or 1 is rejected.
func DecodeBool(result []byte) (bool, error) {
	w, err := firstWord(result, "bool")
	if err != nil {
		return false, err
	}
	for _, b := range w[:wordSize-1] {
		if b != 0 {
			return false, suberr.WithDetails(ErrMalformedResult, map[string]string{"type": "bool"})
		}
	}
	switch w[wordSize-1] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, suberr.WithDetails(ErrMalformedResult, map[string]string{"type": "bool"})
	}
}

// DecodeAddress decodes the first word of result as an address.
func DecodeAddress(result []byte) (common.Address, error) {
	w, err := firstWord(result, "address")
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(w[wordSize-common.AddressLength:]), nil
}
