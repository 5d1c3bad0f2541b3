package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mrz1836/subpass/internal/config"
	"github.com/mrz1836/subpass/internal/keystore"
	"github.com/mrz1836/subpass/internal/output"
	"github.com/mrz1836/subpass/internal/session"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	importIndex      uint32
	importPassphrase bool
	importForce      bool
	addressQR        bool
	unlockTTL        time.Duration
)

// keyCmd is the parent command for signing key operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the signing key",
	Long: `Import, show and unlock the key that signs approve and subscribe.

The key is stored encrypted with a password (age, scrypt). An unlocked key
can be cached for a few minutes so consecutive writes ask for the password
once; the cache is encrypted to a random key kept in the OS keychain.`,
}

// keyImportCmd imports a private key or mnemonic.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a private key or mnemonic",
	Long: `Read a hex private key or a BIP39 mnemonic from the terminal (or the first
line of stdin) and store it encrypted in the key file.

A mnemonic derives the account at m/44'/60'/0'/0/<index>. The password is
read from SUBPASS_KEY_PASSWORD when set, otherwise prompted twice.`,
	Example: `  subpass key import
  subpass key import --index 2 --passphrase
  echo "$PRIVATE_KEY" | SUBPASS_KEY_PASSWORD=... subpass key import --force`,
	RunE: runKeyImport,
}

// keyAddressCmd shows the key's address.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the signing address",
	Long: `Show the address of the imported key without unlocking it.

With --qr, a QR code of the address as an EIP-681 payment URI is drawn in
the terminal, for funding the account from a phone wallet.`,
	Example: `  subpass key address
  subpass key address --qr`,
	RunE: runKeyAddress,
}

// keyUnlockCmd caches the unlocked key.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Cache the unlocked key for a while",
	Long: `Unlock the key once and cache it so the next commands do not ask for the
password. The TTL is clamped to between 1 and 60 minutes.

Requires a working OS keychain.`,
	Example: `  subpass key unlock
  subpass key unlock --ttl 30m`,
	RunE: runKeyUnlock,
}

// keyLockCmd drops the cached key.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyLockCmd = &cobra.Command{
	Use:     "lock",
	Short:   "Forget the cached key",
	Long:    `Remove the cached unlock so the next write asks for the password again.`,
	Example: `  subpass key lock`,
	RunE:    runKeyLock,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	keyCmd.GroupID = groupKey
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyImportCmd, keyAddressCmd, keyUnlockCmd, keyLockCmd)

	keyImportCmd.Flags().Uint32Var(&importIndex, "index", 0, "account index for mnemonic derivation")
	keyImportCmd.Flags().BoolVar(&importPassphrase, "passphrase", false, "prompt for a BIP39 passphrase")
	keyImportCmd.Flags().BoolVar(&importForce, "force", false, "replace an existing key file")
	keyAddressCmd.Flags().BoolVar(&addressQR, "qr", false, "draw the address as a QR code")
	keyUnlockCmd.Flags().DurationVar(&unlockTTL, "ttl", 0, "how long to cache the key (default: signer.unlock_ttl_minutes)")
}

// keyInfo is the JSON form of key command results.
type keyInfo struct {
	Address        string `json:"address"`
	Path           string `json:"path,omitempty"`
	Source         string `json:"source,omitempty"`
	DerivationPath string `json:"derivation_path,omitempty"`
	PaymentURI     string `json:"payment_uri,omitempty"`
	Explorer       string `json:"explorer,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	Locked         bool   `json:"locked,omitempty"`
}

func runKeyImport(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	path := cc.Cfg.KeyFilePath()

	if !importForce {
		if _, err := os.Stat(path); err == nil {
			return suberr.WithSuggestion(
				suberr.WithDetails(suberr.ErrKeyExists, map[string]string{"path": path}),
				"use --force to replace it",
			)
		}
	}

	secret, err := promptSecretFn("Private key or mnemonic: ")
	if err != nil {
		return err
	}

	key, source, derivation, err := parseKeyMaterial(secret)
	if err != nil {
		return err
	}
	defer key.Destroy()

	password, err := newKeyPassword()
	if err != nil {
		return err
	}
	defer keystore.Zero(password)

	kf, err := keystore.Seal(key, string(password), source, derivation)
	if err != nil {
		return err
	}
	if err := keystore.Save(path, kf, importForce); err != nil {
		return err
	}
	cc.Log.Debug("imported %s key for %s into %s", source, kf.Address, path)

	info := keyInfo{Address: kf.Address, Path: path, Source: source, DerivationPath: derivation}
	return cc.Fmt.Emit(info, func(w io.Writer) error {
		output.Successf(w, "Imported key for %s", kf.Address)
		out(w, "Key file: %s\n", path)
		if derivation != "" {
			out(w, "Derived:  %s\n", derivation)
		}
		return nil
	})
}

// parseKeyMaterial reads a mnemonic when secret has several words, a hex
// private key otherwise.
func parseKeyMaterial(secret string) (*keystore.SecureBytes, string, string, error) {
	if len(strings.Fields(keystore.NormalizeMnemonic(secret))) <= 1 {
		key, err := keystore.KeyFromHex(secret)
		return key, keystore.SourceHex, "", err
	}

	passphrase := ""
	if importPassphrase {
		pp, err := promptPasswordFn("BIP39 passphrase: ")
		if err != nil {
			return nil, "", "", err
		}
		passphrase = string(pp)
		keystore.Zero(pp)
	}

	key, err := keystore.KeyFromMnemonic(secret, passphrase, importIndex)
	return key, keystore.SourceMnemonic, keystore.DerivationPath(importIndex), err
}

// newKeyPassword returns SUBPASS_KEY_PASSWORD or a confirmed new password.
func newKeyPassword() ([]byte, error) {
	if pw, ok := config.KeyPassword(); ok {
		return []byte(pw), nil
	}
	return promptNewPasswordFn()
}

func runKeyAddress(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	kf, err := keystore.Load(cc.Cfg.KeyFilePath())
	if err != nil {
		return err
	}

	network := networkFor(cc.Cfg.Network.ChainID)
	addr := common.HexToAddress(kf.Address)
	info := keyInfo{
		Address:        addr.Hex(),
		Path:           cc.Cfg.KeyFilePath(),
		Source:         kf.Source,
		DerivationPath: kf.DerivationPath,
		PaymentURI:     output.PaymentURI(addr, network.ChainID),
		Explorer:       network.AddressURL(addr.Hex()),
	}

	return cc.Fmt.Emit(info, func(w io.Writer) error {
		outln(w, info.Address)
		if info.Explorer != "" {
			outln(w, info.Explorer)
		}
		if addressQR {
			outln(w)
			return output.RenderQR(w, info.PaymentURI, output.DefaultQRConfig())
		}
		return nil
	})
}

func runKeyUnlock(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	cache := cc.Unlocks()
	if !cache.Available() {
		return suberr.WithSuggestion(
			suberr.WithDetails(suberr.ErrAuthentication, map[string]string{"reason": "OS keychain unavailable"}),
			"set SUBPASS_KEY_PASSWORD to sign without prompts",
		)
	}

	kf, err := keystore.Load(cc.Cfg.KeyFilePath())
	if err != nil {
		return err
	}

	password, err := keyPassword(kf.Address)
	if err != nil {
		return err
	}
	key, err := kf.Unlock(string(password))
	keystore.Zero(password)
	if err != nil {
		return err
	}
	defer key.Destroy()

	ttl := unlockTTL
	if ttl == 0 {
		ttl = cc.Cfg.UnlockTTL()
	}
	unlock, err := cache.Store(common.HexToAddress(kf.Address), key, session.ClampTTL(ttl))
	if err != nil {
		return suberr.WithCause(suberr.ErrAuthentication, err)
	}

	info := keyInfo{Address: kf.Address, ExpiresAt: unlock.ExpiresAt.UTC().Format(time.RFC3339)}
	return cc.Fmt.Emit(info, func(w io.Writer) error {
		output.Successf(w, "Unlocked %s for %s", kf.Address, unlock.TTL().Round(time.Second))
		return nil
	})
}

func runKeyLock(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	kf, err := keystore.Load(cc.Cfg.KeyFilePath())
	if err != nil {
		return err
	}

	cache := cc.Unlocks()
	if cache.Available() {
		if err := cache.Lock(common.HexToAddress(kf.Address)); err != nil {
			return err
		}
	}

	info := keyInfo{Address: kf.Address, Locked: true}
	return cc.Fmt.Emit(info, func(w io.Writer) error {
		output.Successf(w, "Locked %s", kf.Address)
		return nil
	})
}
