package seed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/term"

	"github.com/nightvault/agent-wallet/cli/agentwallet/cmd/types"
)

const seedFileName = "seed.hex"

// Generate creates a fresh mnemonic and derives the wallet seed from it with
// the given passphrase. The mnemonic is returned so it can be shown to the
// user once, for offline backup.
func Generate(passphrase string) (mnemonic string, walletSeed []byte, err error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return mnemonic, bip39.NewSeed(mnemonic, passphrase), nil
}

// FromMnemonic derives the wallet seed from an existing mnemonic.
func FromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic %q", mnemonic)
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

// Save writes the seed hex-encoded into the wallet home directory, failing if
// a seed file already exists.
func Save(walletHomeDir string, walletSeed []byte) error {
	if err := os.MkdirAll(walletHomeDir, 0700); err != nil {
		return fmt.Errorf("failed to create wallet home directory: %w", err)
	}
	path := filepath.Join(walletHomeDir, seedFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet already exists in %s", walletHomeDir)
	}
	if err := os.WriteFile(path, []byte(hexutil.Encode(walletSeed)), 0600); err != nil {
		return fmt.Errorf("failed to write seed file: %w", err)
	}
	return nil
}

// Load reads the hex-encoded seed from the wallet home directory.
func Load(walletHomeDir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(walletHomeDir, seedFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no wallet found in %s, run \"wallet create\" first", walletHomeDir)
		}
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	walletSeed, err := hexutil.Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("malformed seed file: %w", err)
	}
	return walletSeed, nil
}

func ReadPassword(consoleWriter types.ConsoleWrapper, promptMessage string) (string, error) {
	consoleWriter.Print(promptMessage)
	passwordBytes, err := term.ReadPassword(syscall.Stdin)
	if err != nil {
		return "", err
	}
	consoleWriter.Println("") // line break after reading password
	return string(passwordBytes), nil
}

func CreatePassphrase(config *types.WalletConfig) (string, error) {
	if config.PasswordFromArg != "" {
		return config.PasswordFromArg, nil
	}
	if !config.PromptPassword {
		return "", nil
	}
	p1, err := ReadPassword(config.Base.ConsoleWriter, "Create new passphrase: ")
	if err != nil {
		return "", err
	}
	p2, err := ReadPassword(config.Base.ConsoleWriter, "Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if p1 != p2 {
		return "", errors.New("passphrases do not match")
	}
	return p1, nil
}
