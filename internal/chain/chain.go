// Package chain provides network definitions and the transport utilities
// shared by ledger adapters: retry with backoff, per-endpoint rate limiting
// and token amount formatting.
package chain

import (
	"strings"
)

// Network describes an EVM network the ledger adapter can talk to.
type Network struct {
	Name       string
	ChainID    uint64
	DefaultRPC string
	Explorer   string // Base URL of a block explorer, empty for local networks
}

// Known chain IDs.
const (
	ChainIDMainnet uint64 = 1
	ChainIDSepolia uint64 = 11155111
	ChainIDHardhat uint64 = 31337
)

//nolint:gochecknoglobals // Static lookup table
var networks = []Network{
	{Name: "mainnet", ChainID: ChainIDMainnet, DefaultRPC: "https://ethereum-rpc.publicnode.com", Explorer: "https://etherscan.io"},
	{Name: "sepolia", ChainID: ChainIDSepolia, DefaultRPC: "https://ethereum-sepolia-rpc.publicnode.com", Explorer: "https://sepolia.etherscan.io"},
	{Name: "hardhat", ChainID: ChainIDHardhat, DefaultRPC: "http://127.0.0.1:8545"},
}

// Networks returns all known networks.
func Networks() []Network {
	out := make([]Network, len(networks))
	copy(out, networks)
	return out
}

// NetworkByChainID looks up a known network.
func NetworkByChainID(id uint64) (Network, bool) {
	for _, n := range networks {
		if n.ChainID == id {
			return n, true
		}
	}
	return Network{}, false
}

// NetworkByName looks up a known network by case-insensitive name.
func NetworkByName(name string) (Network, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range networks {
		if n.Name == name {
			return n, true
		}
	}
	return Network{}, false
}

// TxURL returns the explorer link for a transaction hash, or "" when the
// network has no explorer.
func (n Network) TxURL(hash string) string {
	if n.Explorer == "" || hash == "" {
		return ""
	}
	return n.Explorer + "/tx/" + hash
}

// AddressURL returns the explorer link for an address, or "".
func (n Network) AddressURL(addr string) string {
	if n.Explorer == "" || addr == "" {
		return ""
	}
	return n.Explorer + "/address/" + addr
}
