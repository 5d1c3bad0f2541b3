package config

// DefaultRPCURL is the default Sepolia JSON-RPC endpoint.
// PublicNode requires no API key.
const DefaultRPCURL = "https://ethereum-sepolia-rpc.publicnode.com"

// Sepolia deployment of the subscription registry and its payment token.
// Stored lowercase so no checksum is implied.
const (
	DefaultTokenContract        = "0x3ec192df723833621108f6769a32b4e0a18ab0a8"
	DefaultSubscriptionContract = "0x1e2cb1cebd00485d02461eeb532afb19f50898e0"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.subpass",
		Network: NetworkConfig{
			RPC:       DefaultRPCURL,
			ChainID:   11155111,
			RateLimit: 5,
			RateBurst: 10,
		},
		Contracts: ContractsConfig{
			Token:         DefaultTokenContract,
			Subscription:  DefaultSubscriptionContract,
			TokenSymbol:   "PYUSD",
			TokenDecimals: 6,
		},
		Confirmation: ConfirmationConfig{
			TimeoutSeconds: 180,
			PollIntervalMS: 2000,
		},
		Signer: SignerConfig{
			KeyFile:          "~/.subpass/signer.key.age",
			GasSpeed:         "medium",
			UnlockTTLMinutes: 15,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.subpass/subpass.log",
		},
	}
}
