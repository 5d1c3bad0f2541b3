package eth

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// ParseAddress reads a user-supplied 0x-prefixed account or contract address.
// Single-case input is taken as is; mixed case must carry a correct EIP-55
// checksum so a mistyped character is caught before any read or write.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2+2*common.AddressLength || !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return common.Address{}, suberr.WithDetails(suberr.ErrInvalidAddress, map[string]string{"address": s})
	}

	addr := common.HexToAddress(s)
	digits := s[2:]
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return addr, nil
	}

	if want := Checksum(addr); want != s {
		return common.Address{}, suberr.WithSuggestion(
			suberr.WithDetails(suberr.ErrInvalidChecksum, map[string]string{
				"address":  s,
				"expected": want,
			}),
			"check the address for typos, or pass it in all lowercase to skip the checksum",
		)
	}
	return addr, nil
}

// Checksum renders addr in EIP-55 mixed case: a letter is upper case when
// the matching nibble of keccak256(lowercase hex) is 8 or more.
func Checksum(addr common.Address) string {
	lower := hex.EncodeToString(addr.Bytes())

	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte("0x" + lower)
	for i := range len(lower) {
		nibble := digest[i/2] >> 4
		if i%2 == 1 {
			nibble = digest[i/2] & 0x0f
		}
		if c := out[i+2]; c >= 'a' && c <= 'f' && nibble >= 8 {
			out[i+2] = c - ('a' - 'A')
		}
	}
	return string(out)
}
