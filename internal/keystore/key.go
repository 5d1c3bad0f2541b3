package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/subpass/internal/fileutil"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// FileVersion is the current key file format version.
const FileVersion = 1

// Key sources recorded in the key file.
const (
	SourceHex      = "hex"
	SourceMnemonic = "mnemonic"
)

// File is an encrypted signing key on disk. The address is stored in clear
// so it can be shown without the password.
type File struct {
	Version        int       `json:"version"`
	Address        string    `json:"address"`
	Source         string    `json:"source"`
	DerivationPath string    `json:"derivation_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Ciphertext     string    `json:"ciphertext"`
}

// KeyFromHex parses a 32-byte hex private key, with or without 0x.
func KeyFromHex(s string) (*SecureBytes, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		Zero(raw)
		return nil, suberr.WithDetails(suberr.ErrInvalidInput, map[string]string{
			"reason": "private key must be 64 hex characters",
		})
	}

	sb := SecureBytesFromSlice(raw)
	if _, err := AddressOf(sb); err != nil {
		sb.Destroy()
		return nil, err
	}
	return sb, nil
}

// AddressOf returns the address controlled by key.
func AddressOf(key *SecureBytes) (common.Address, error) {
	priv, err := crypto.ToECDSA(key.Bytes())
	if err != nil {
		return common.Address{}, suberr.WithDetails(suberr.WithCause(suberr.ErrInvalidInput, err), map[string]string{
			"reason": "not a valid secp256k1 private key",
		})
	}
	defer priv.D.SetInt64(0)
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

// Seal encrypts key with password into a File.
func Seal(key *SecureBytes, password, source, derivationPath string) (*File, error) {
	if password == "" {
		return nil, suberr.WithDetails(suberr.ErrInvalidInput, map[string]string{
			"reason": "password must not be empty",
		})
	}

	addr, err := AddressOf(key)
	if err != nil {
		return nil, err
	}

	ciphertext, err := Encrypt(key.Bytes(), password)
	if err != nil {
		return nil, err
	}

	return &File{
		Version:        FileVersion,
		Address:        addr.Hex(),
		Source:         source,
		DerivationPath: derivationPath,
		CreatedAt:      time.Now().UTC(),
		Ciphertext:     string(ciphertext),
	}, nil
}

// Unlock decrypts the key and checks it still controls the recorded address.
func (f *File) Unlock(password string) (*SecureBytes, error) {
	key, err := Decrypt([]byte(f.Ciphertext), password)
	if err != nil {
		return nil, suberr.WithSuggestion(err, "check the key password")
	}

	addr, err := AddressOf(key)
	if err != nil || !strings.EqualFold(addr.Hex(), f.Address) {
		key.Destroy()
		return nil, suberr.WithDetails(suberr.ErrDecryptionFailed, map[string]string{
			"reason": "decrypted key does not match the recorded address",
		})
	}
	return key, nil
}

// Save writes f atomically with owner-only permissions.
// An existing file is only replaced when overwrite is set.
func Save(path string, f *File, overwrite bool) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding key file: %w", err)
	}

	err = fileutil.WriteFile(path, data, fileutil.Options{NoReplace: !overwrite})
	if errors.Is(err, os.ErrExist) {
		return suberr.WithDetails(suberr.ErrKeyExists, map[string]string{"path": path})
	}
	return err
}

// Load reads a key file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, suberr.WithSuggestion(
				suberr.WithDetails(suberr.ErrKeyNotFound, map[string]string{"path": path}),
				"import a key with: subpass key import",
			)
		}
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, suberr.WithDetails(suberr.WithCause(suberr.ErrInvalidInput, err), map[string]string{
			"path":   path,
			"reason": "key file is not valid JSON",
		})
	}
	if f.Version != FileVersion || f.Ciphertext == "" || !common.IsHexAddress(f.Address) {
		return nil, suberr.WithDetails(suberr.ErrInvalidInput, map[string]string{
			"path":   path,
			"reason": "unsupported or incomplete key file",
		})
	}
	return &f, nil
}
