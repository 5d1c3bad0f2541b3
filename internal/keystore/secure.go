// Package keystore holds the signing key: mlocked in-memory key material,
// age encryption at rest, and import from hex or a BIP39 mnemonic.
package keystore

import (
	"runtime"
	"sync"
)

// SecureBytes wraps key material with mlock and explicit zeroing.
type SecureBytes struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// NewSecureBytes allocates size zeroed bytes, locked in memory when the
// system allows it.
func NewSecureBytes(size int) *SecureBytes {
	sb := &SecureBytes{data: make([]byte, size)}
	sb.locked = mlock(sb.data)

	// Clear the memory even if Destroy is never called
	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb
}

// SecureBytesFromSlice copies data into secure memory and zeroes the source.
func SecureBytesFromSlice(data []byte) *SecureBytes {
	sb := NewSecureBytes(len(data))
	copy(sb.data, data)
	Zero(data)
	return sb
}

// Bytes returns the underlying slice, or nil after Destroy.
// The slice aliases secure memory and must not be retained.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// IsLocked reports whether the memory is mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Len returns the length of the data.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Destroy zeroes and unlocks the memory. Safe to call multiple times.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	Zero(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil

	runtime.SetFinalizer(s, nil)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
