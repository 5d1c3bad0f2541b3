package session

import (
	"time"

	"github.com/zalando/go-keyring"
)

// probeTimeout bounds the keyring probe so startup never hangs on a slow
// or stuck keyring daemon.
const probeTimeout = 3 * time.Second

// OSKeyring implements the Keyring interface using the OS keychain.
type OSKeyring struct{}

// NewOSKeyring creates a new OS keyring wrapper.
func NewOSKeyring() *OSKeyring {
	return &OSKeyring{}
}

// Set stores a secret in the OS keyring.
func (k *OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Get retrieves a secret from the OS keyring.
func (k *OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret from the OS keyring.
func (k *OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// ProbeKeyring reports whether k can store, read back and delete a value
// within probeTimeout.
func ProbeKeyring(k Keyring) bool {
	ch := make(chan bool, 1)
	go func() {
		ch <- probe(k)
	}()

	select {
	case ok := <-ch:
		return ok
	case <-time.After(probeTimeout):
		return false
	}
}

func probe(k Keyring) bool {
	const (
		testService = "subpass-probe"
		testUser    = "probe"
		testValue   = "test"
	)

	if err := k.Set(testService, testUser, testValue); err != nil {
		return false
	}

	val, err := k.Get(testService, testUser)
	if err != nil || val != testValue {
		_ = k.Delete(testService, testUser)
		return false
	}

	return k.Delete(testService, testUser) == nil
}
