// Package session provides the wallet session the subscription flow reads
// from, plus a short-lived unlock cache so a signing key only needs its
// password once per TTL. The unlock key is stored in the OS keychain, with
// the encrypted signing key stored in a session file.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/keystore"
)

// Default unlock cache configuration values.
const (
	// DefaultTTL is the default unlock duration (15 minutes).
	DefaultTTL = 15 * time.Minute

	// MaxTTL is the maximum allowed unlock duration (60 minutes).
	MaxTTL = 60 * time.Minute

	// MinTTL is the minimum allowed unlock duration (1 minute).
	MinTTL = 1 * time.Minute

	// ServiceName is the keyring service name for subpass unlocks.
	ServiceName = "subpass-unlock"
)

// Unlock cache errors.
var (
	// ErrUnlockNotFound indicates no cached unlock exists for the signer.
	ErrUnlockNotFound = errors.New("unlock not found")

	// ErrUnlockExpired indicates the cached unlock has expired.
	ErrUnlockExpired = errors.New("unlock expired")

	// ErrKeyringUnavailable indicates the OS keyring is not available.
	ErrKeyringUnavailable = errors.New("keyring unavailable")

	// ErrUnlockCorrupted indicates the unlock file is corrupted.
	ErrUnlockCorrupted = errors.New("unlock corrupted")
)

// Session is the wallet session as seen by the flow controller.
// Address is the zero address while the wallet is still resolving it.
type Session struct {
	Address   common.Address
	Connected bool
}

// HasAddress reports whether the session is connected with a resolved address.
func (s Session) HasAddress() bool {
	return s.Connected && s.Address != (common.Address{})
}

// Provider supplies the current wallet session.
type Provider interface {
	Session() Session
}

// Static is a fixed Provider, used for watch-only addresses.
type Static struct {
	S Session
}

// Session returns the fixed session.
func (s Static) Session() Session {
	return s.S
}

// Watch returns a connected watch-only session for addr.
func Watch(addr common.Address) Static {
	return Static{S: Session{Address: addr, Connected: true}}
}

// Wallet is a mutable Provider. Connect, Resolve and Disconnect model the
// external wallet's lifecycle; callers notify the controller after each change.
type Wallet struct {
	mu      sync.RWMutex
	current Session
}

// NewWallet returns a disconnected wallet session.
func NewWallet() *Wallet {
	return &Wallet{}
}

// NewConnected returns a wallet session already connected as addr.
func NewConnected(addr common.Address) *Wallet {
	return &Wallet{current: Session{Address: addr, Connected: true}}
}

// Session returns the current session.
func (w *Wallet) Session() Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Connect marks the wallet connected before its address is known.
func (w *Wallet) Connect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = Session{Connected: true}
}

// Resolve connects the wallet as addr, replacing any previous address.
func (w *Wallet) Resolve(addr common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = Session{Address: addr, Connected: true}
}

// Disconnect drops the session.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = Session{}
}

// Unlock represents a cached signing-key unlock.
type Unlock struct {
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid returns true if the unlock has not expired.
func (u *Unlock) IsValid() bool {
	return time.Now().Before(u.ExpiresAt)
}

// TTL returns the remaining time until the unlock expires.
// Returns 0 if it has already expired.
func (u *Unlock) TTL() time.Duration {
	remaining := time.Until(u.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UnlockCache defines the interface for caching decrypted signing keys.
type UnlockCache interface {
	// Available returns true if caching is available (keyring accessible).
	Available() bool

	// Store caches key for the signer address, encrypted to a random
	// identity held in the OS keyring.
	Store(addr common.Address, key *keystore.SecureBytes, ttl time.Duration) (*Unlock, error)

	// Load returns the decrypted key for an active unlock.
	// Returns ErrUnlockNotFound or ErrUnlockExpired when there is none.
	Load(addr common.Address) (*keystore.SecureBytes, *Unlock, error)

	// Lock removes the unlock for a signer address.
	Lock(addr common.Address) error
}

// Keyring defines the interface for secure key storage.
// This abstraction allows for testing with mock implementations.
type Keyring interface {
	// Set stores a secret in the keyring.
	Set(service, user, password string) error

	// Get retrieves a secret from the keyring.
	Get(service, user string) (string, error)

	// Delete removes a secret from the keyring.
	Delete(service, user string) error
}
