package eth

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceManager tracks the next nonce per sender so an approve followed
// quickly by a subscribe does not reuse a nonce before the first
// transaction shows up in the node's pending count.
type NonceManager struct {
	mu     sync.Mutex
	nonces map[common.Address]uint64 // sender -> one past the highest used
}

// NewNonceManager creates a new NonceManager.
func NewNonceManager() *NonceManager {
	return &NonceManager{
		nonces: make(map[common.Address]uint64),
	}
}

// Next returns the higher of the node's pending nonce and the locally
// tracked one, and advances local tracking past it.
func (nm *NonceManager) Next(address common.Address, rpcNonce uint64) uint64 {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nonce := rpcNonce
	if local, exists := nm.nonces[address]; exists && local > rpcNonce {
		nonce = local
	}
	nm.nonces[address] = nonce + 1

	return nonce
}

// Reset clears local tracking for an address after a failed send.
func (nm *NonceManager) Reset(address common.Address) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.nonces, address)
}
