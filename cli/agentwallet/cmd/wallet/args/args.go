package args

import "strings"

const (
	NodeUrl           = "node-url"
	IndexerUrl        = "indexer-url"
	ProverUrl         = "prover-url"
	DefaultNodeUrl    = "localhost:26866"
	DefaultIndexerUrl = "localhost:27866"
	DefaultProverUrl  = "localhost:28866"

	PasswordPromptUsage   = "passphrase (interactive from prompt)"
	PasswordArgUsage      = "passphrase (non-interactive from args)"
	SeedCmdName           = "seed"
	NetworkCmdName        = "network"
	DefaultNetwork        = "mainnet"
	AddressCmdName        = "address"
	AmountCmdName         = "amount"
	PasswordPromptCmdName = "password"
	PasswordArgCmdName    = "pn"
	WalletLocationCmdName = "wallet-location"
	WaitForConfCmdName    = "wait-for-confirmation"
	OutputCmdName         = "output"
	QuietCmdName          = "quiet"
	ReadyTimeoutCmdName   = "ready-timeout"
)

func BuildRpcUrl(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	return strings.TrimSuffix(url, "/")
}
