package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/subpass/internal/fileutil"
	"github.com/mrz1836/subpass/internal/keystore"
)

const (
	unlockFileExtension = ".unlock"
	unlockFilePerm      = 0o600
	unlockDirPerm       = 0o700
)

// unlockFile is the on-disk form of a cached unlock. The key is encrypted
// to an X25519 identity that only lives in the OS keyring.
type unlockFile struct {
	Unlock       *Unlock `json:"unlock"`
	EncryptedKey string  `json:"encrypted_key"`
}

// FileCache implements UnlockCache with files under basePath and
// identities in the OS keyring.
type FileCache struct {
	basePath  string
	keyring   Keyring
	available bool
	mu        sync.RWMutex
}

var _ UnlockCache = (*FileCache)(nil)

// NewFileCache creates an unlock cache rooted at basePath.
// A nil keyring uses the OS keyring. The keyring is probed once here.
func NewFileCache(basePath string, kr Keyring) *FileCache {
	if kr == nil {
		kr = NewOSKeyring()
	}
	return &FileCache{
		basePath:  basePath,
		keyring:   kr,
		available: ProbeKeyring(kr),
	}
}

// Available returns true if the keyring answered the probe.
func (c *FileCache) Available() bool {
	return c.available
}

// ClampTTL bounds ttl to [MinTTL, MaxTTL]. Zero means DefaultTTL.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl == 0:
		return DefaultTTL
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	}
	return ttl
}

// Store caches key for addr until the clamped ttl elapses.
func (c *FileCache) Store(addr common.Address, key *keystore.SecureBytes, ttl time.Duration) (*Unlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return nil, ErrKeyringUnavailable
	}

	identity, err := keystore.NewUnlockIdentity()
	if err != nil {
		return nil, err
	}

	ciphertext, err := keystore.EncryptToIdentity(key.Bytes(), identity)
	if err != nil {
		return nil, fmt.Errorf("encrypting key: %w", err)
	}

	user := keyringUser(addr)
	if err = c.keyring.Set(ServiceName, user, identity); err != nil {
		return nil, fmt.Errorf("storing unlock identity in keyring: %w", err)
	}

	now := time.Now()
	u := &Unlock{
		Address:   addr.Hex(),
		CreatedAt: now,
		ExpiresAt: now.Add(ClampTTL(ttl)),
	}

	data, err := json.MarshalIndent(unlockFile{Unlock: u, EncryptedKey: string(ciphertext)}, "", "  ")
	if err != nil {
		_ = c.keyring.Delete(ServiceName, user)
		return nil, fmt.Errorf("marshaling unlock: %w", err)
	}

	if err = fileutil.WriteFile(c.unlockPath(addr), data, fileutil.Options{Perm: unlockFilePerm, DirPerm: unlockDirPerm}); err != nil {
		_ = c.keyring.Delete(ServiceName, user)
		return nil, fmt.Errorf("writing unlock file: %w", err)
	}

	return u, nil
}

// Load returns the cached key for addr. Expired, orphaned or unreadable
// unlocks are removed and reported as not found, expired or corrupted.
func (c *FileCache) Load(addr common.Address) (*keystore.SecureBytes, *Unlock, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.available {
		return nil, nil, ErrKeyringUnavailable
	}

	data, err := os.ReadFile(c.unlockPath(addr))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrUnlockNotFound
		}
		return nil, nil, fmt.Errorf("reading unlock file: %w", err)
	}

	var uf unlockFile
	if err = json.Unmarshal(data, &uf); err != nil || uf.Unlock == nil {
		_ = c.cleanup(addr)
		return nil, nil, ErrUnlockCorrupted
	}

	if !uf.Unlock.IsValid() {
		_ = c.cleanup(addr)
		return nil, nil, ErrUnlockExpired
	}

	if !strings.EqualFold(uf.Unlock.Address, addr.Hex()) {
		_ = c.cleanup(addr)
		return nil, nil, ErrUnlockCorrupted
	}

	identity, err := c.keyring.Get(ServiceName, keyringUser(addr))
	if err != nil {
		_ = c.cleanup(addr)
		return nil, nil, ErrUnlockNotFound
	}

	key, err := keystore.DecryptWithIdentity([]byte(uf.EncryptedKey), identity)
	if err != nil {
		_ = c.cleanup(addr)
		return nil, nil, ErrUnlockCorrupted
	}

	return key, uf.Unlock, nil
}

// Lock removes the unlock for addr. Locking an address with no unlock is
// not an error.
func (c *FileCache) Lock(addr common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanup(addr)
}

// cleanup removes the keyring entry and the unlock file. Callers hold mu.
func (c *FileCache) cleanup(addr common.Address) error {
	_ = c.keyring.Delete(ServiceName, keyringUser(addr))

	if err := fileutil.Remove(c.unlockPath(addr)); err != nil {
		return fmt.Errorf("removing unlock file: %w", err)
	}
	return nil
}

func keyringUser(addr common.Address) string {
	return "signer:" + strings.ToLower(addr.Hex())
}

// unlockPath is derived from the address bytes, so it cannot escape basePath.
func (c *FileCache) unlockPath(addr common.Address) string {
	return filepath.Join(c.basePath, strings.ToLower(addr.Hex())+unlockFileExtension)
}
