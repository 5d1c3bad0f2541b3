package keystore

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// MaxTypoDistance is the largest edit distance offered as a word suggestion.
const MaxTypoDistance = 2

// coinTypeETH is the SLIP-44 coin type for Ethereum.
const coinTypeETH = 60

//nolint:gochecknoglobals // Compiled once
var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
	bulletListRegex   = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
)

// NormalizeMnemonic lowercases the phrase, strips list numbering, bullets
// and commas, and collapses whitespace.
func NormalizeMnemonic(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// ValidateMnemonic checks word count, word list membership and checksum.
// Unknown words get a did-you-mean suggestion.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonic(mnemonic)
	words := strings.Fields(normalized)

	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return suberr.WithDetails(suberr.ErrInvalidMnemonic, map[string]string{
			"words": fmt.Sprintf("%d", len(words)),
		})
	}

	for i, w := range words {
		if _, ok := bip39.GetWordIndex(w); ok {
			continue
		}
		err := suberr.WithDetails(suberr.ErrInvalidMnemonic, map[string]string{
			"position": fmt.Sprintf("%d", i+1),
			"word":     w,
		})
		if s := SuggestWord(w); s != "" {
			err = suberr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", s))
		}
		return err
	}

	if !bip39.IsMnemonicValid(normalized) {
		return suberr.WithDetails(suberr.ErrInvalidMnemonic, map[string]string{
			"reason": "checksum mismatch",
		})
	}
	return nil
}

// SuggestWord returns the closest BIP39 word within MaxTypoDistance, or "".
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string
	for _, word := range bip39.GetWordList() {
		dist := levenshtein.ComputeDistance(input, word)
		if dist == 0 {
			return word
		}
		if dist < minDist {
			minDist = dist
			suggestion = word
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DerivationPath returns the BIP44 path used for an account index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", coinTypeETH, index)
}

// KeyFromMnemonic derives the private key at m/44'/60'/0'/0/index.
func KeyFromMnemonic(mnemonic, passphrase string, index uint32) (*SecureBytes, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}

	seed, err := bip39.NewSeedWithErrorChecking(NormalizeMnemonic(mnemonic), passphrase)
	if err != nil {
		return nil, suberr.WithCause(suberr.ErrInvalidMnemonic, err)
	}
	defer Zero(seed)

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + coinTypeETH,
		bip32.FirstHardenedChild,
		0,
		index,
	}
	for _, child := range path {
		next, err := key.NewChildKey(child)
		Zero(key.Key)
		if err != nil {
			return nil, fmt.Errorf("deriving %s: %w", DerivationPath(index), err)
		}
		key = next
	}

	// bip32 does not left-pad private keys with a leading zero byte
	sb := SecureBytesFromSlice(common.LeftPadBytes(key.Key, 32))
	Zero(key.Key)
	return sb, nil
}
