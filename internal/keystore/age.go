package keystore

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"filippo.io/age"
	"filippo.io/age/armor"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// DefaultScryptWorkFactor is age's default scrypt cost (log2 N).
const DefaultScryptWorkFactor = 18

//nolint:gochecknoglobals // Process-wide tuning knob, lowered in tests
var scryptWorkFactor atomic.Int32

//nolint:gochecknoinits // Initialize the atomic default
func init() {
	scryptWorkFactor.Store(DefaultScryptWorkFactor)
}

// SetScryptWorkFactor changes the scrypt cost used for new password
// encryptions. Existing ciphertexts record their own cost.
func SetScryptWorkFactor(logN int) {
	scryptWorkFactor.Store(int32(logN)) //nolint:gosec // Small bounded value
}

// Encrypt encrypts plaintext to password and returns ASCII-armored age output.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(int(scryptWorkFactor.Load()))

	return encryptArmored(plaintext, recipient)
}

// Decrypt decrypts armored age output with password.
// A wrong password returns errors.ErrDecryptionFailed.
func Decrypt(ciphertext []byte, password string) (*SecureBytes, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	return decryptArmored(ciphertext, identity)
}

// NewUnlockIdentity generates a random X25519 identity for the unlock cache.
// The returned string is the secret identity; keep it out of the file system.
func NewUnlockIdentity() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	return identity.String(), nil
}

// EncryptToIdentity encrypts plaintext to the recipient of a secret identity.
func EncryptToIdentity(plaintext []byte, identity string) ([]byte, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, suberr.WithCause(suberr.ErrDecryptionFailed, err)
	}
	return encryptArmored(plaintext, id.Recipient())
}

// DecryptWithIdentity decrypts output of EncryptToIdentity.
func DecryptWithIdentity(ciphertext []byte, identity string) (*SecureBytes, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, suberr.WithCause(suberr.ErrDecryptionFailed, err)
	}
	return decryptArmored(ciphertext, id)
}

func encryptArmored(plaintext []byte, recipient age.Recipient) ([]byte, error) {
	buf := &bytes.Buffer{}
	armored := armor.NewWriter(buf)

	w, err := age.Encrypt(armored, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err = w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err = w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err = armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}

	return buf.Bytes(), nil
}

func decryptArmored(ciphertext []byte, identity age.Identity) (*SecureBytes, error) {
	r, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identity)
	if err != nil {
		return nil, suberr.WithCause(suberr.ErrDecryptionFailed, err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		Zero(plaintext)
		return nil, suberr.WithCause(suberr.ErrDecryptionFailed, err)
	}

	return SecureBytesFromSlice(plaintext), nil
}
