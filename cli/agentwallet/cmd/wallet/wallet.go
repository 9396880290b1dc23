package wallet

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nightvault/agent-wallet/cli/agentwallet/cmd/types"
	"github.com/nightvault/agent-wallet/cli/agentwallet/cmd/util/seed"
	"github.com/nightvault/agent-wallet/cli/agentwallet/cmd/wallet/args"
	sdktypes "github.com/nightvault/agent-wallet/client/types"
	"github.com/nightvault/agent-wallet/wallet"
	"github.com/nightvault/agent-wallet/wallet/txstore"
)

// NewWalletCmd creates a new cobra command for the wallet component. The
// capability factory is provided by the binary that links a concrete ledger
// client.
func NewWalletCmd(baseConfig *types.BaseConfiguration, factory sdktypes.CapabilityFactory) *cobra.Command {
	config := &types.WalletConfig{Base: baseConfig}
	var walletCmd = &cobra.Command{
		Use:   "wallet",
		Short: "cli for managing the agent wallet",
		PersistentPreRunE: func(ccmd *cobra.Command, args []string) error {
			// initialize config so that baseConf.HomeDir gets configured
			if err := types.InitializeConfig(ccmd, baseConfig); err != nil {
				return fmt.Errorf("initializing base configuration: %w", err)
			}

			if err := InitWalletConfig(ccmd, config); err != nil {
				return fmt.Errorf("initializing wallet configuration: %w", err)
			}
			return nil
		},
	}
	walletCmd.AddCommand(CreateCmd(config))
	walletCmd.AddCommand(SendCmd(config, factory))
	walletCmd.AddCommand(StatusCmd(config, factory))
	walletCmd.AddCommand(ListCmd(config))
	walletCmd.AddCommand(PendingCmd(config))
	walletCmd.PersistentFlags().BoolVarP(&config.PromptPassword, args.PasswordPromptCmdName, "p", false, args.PasswordPromptUsage)
	walletCmd.PersistentFlags().StringVar(&config.PasswordFromArg, args.PasswordArgCmdName, "", args.PasswordArgUsage)
	walletCmd.PersistentFlags().StringVarP(&config.WalletHomeDir, args.WalletLocationCmdName, "l", "", "wallet home directory (default $NV_HOME/wallet)")
	return walletCmd
}

func CreateCmd(config *types.WalletConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "creates a new wallet seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecCreateCmd(cmd, config)
		},
	}
	cmd.Flags().StringP(args.SeedCmdName, "s", "", "mnemonic seed, the number of words should be 12, 15, 18, 21 or 24")
	return cmd
}

func ExecCreateCmd(cmd *cobra.Command, config *types.WalletConfig) (err error) {
	mnemonic := ""
	if cmd.Flags().Changed(args.SeedCmdName) {
		if mnemonic, err = cmd.Flags().GetString(args.SeedCmdName); err != nil {
			return fmt.Errorf("failed to read the value of the %q flag: %w", args.SeedCmdName, err)
		}
	}

	password, err := seed.CreatePassphrase(config)
	if err != nil {
		return err
	}

	var walletSeed []byte
	generated := mnemonic == ""
	if generated {
		mnemonic, walletSeed, err = seed.Generate(password)
		if err != nil {
			return err
		}
	} else {
		if walletSeed, err = seed.FromMnemonic(mnemonic, password); err != nil {
			return err
		}
	}
	if err := seed.Save(config.WalletHomeDir, walletSeed); err != nil {
		return err
	}

	if generated {
		config.Base.ConsoleWriter.Println("The following mnemonic key can be used to recover your wallet. Please write it down now, and keep it in a safe, offline place.")
		config.Base.ConsoleWriter.Println("mnemonic key: " + mnemonic)
	}
	return nil
}

func SendCmd(config *types.WalletConfig, factory sdktypes.CapabilityFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "sends funds to the given address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecSendCmd(cmd.Context(), cmd, config, factory)
		},
	}
	cmd.Flags().StringP(args.AddressCmdName, "a", "", "address of the receiver")
	cmd.Flags().StringP(args.AmountCmdName, "v", "", "the amount to send to the receiver")
	addConnectionFlags(cmd)
	// use string instead of boolean as boolean requires equals sign between name and value e.g. w=[true|false]
	cmd.Flags().StringP(args.WaitForConfCmdName, "w", "true", "waits for the transfer broadcast, "+
		"otherwise returns as soon as the transfer is durably recorded")
	if err := cmd.MarkFlagRequired(args.AddressCmdName); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired(args.AmountCmdName); err != nil {
		panic(err)
	}
	return cmd
}

func ExecSendCmd(ctx context.Context, cmd *cobra.Command, config *types.WalletConfig, factory sdktypes.CapabilityFactory) error {
	address, err := cmd.Flags().GetString(args.AddressCmdName)
	if err != nil {
		return err
	}
	amount, err := cmd.Flags().GetString(args.AmountCmdName)
	if err != nil {
		return err
	}
	waitForConfStr, err := cmd.Flags().GetString(args.WaitForConfCmdName)
	if err != nil {
		return err
	}
	waitForConf, err := strconv.ParseBool(waitForConfStr)
	if err != nil {
		return err
	}

	w, err := connectWallet(ctx, cmd, config, factory)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := waitForReady(ctx, cmd, w); err != nil {
		return err
	}

	if waitForConf {
		result, err := w.SubmitTransferAndWait(ctx, address, amount)
		if err != nil {
			return err
		}
		config.Base.ConsoleWriter.Println("Successfully broadcast transaction " + result.Record.ID)
		config.Base.ConsoleWriter.Println("ledger id: " + result.LedgerID)
	} else {
		result, err := w.SubmitTransfer(ctx, address, amount)
		if err != nil {
			return err
		}
		config.Base.ConsoleWriter.Println("Successfully recorded transaction " + result.ID)
	}
	return nil
}

func StatusCmd(config *types.WalletConfig, factory sdktypes.CapabilityFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [transaction-id]",
		Short: "shows the connection status, or the status of a single transaction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			return ExecStatusCmd(cmd.Context(), cmd, cmdArgs, config, factory)
		},
	}
	addConnectionFlags(cmd)
	cmd.Flags().StringP(args.OutputCmdName, "o", "text", "output format, one of: text, yaml")
	cmd.Flags().BoolP(args.QuietCmdName, "q", false, "hides info irrelevant for scripting, prints only the available balance")
	return cmd
}

func ExecStatusCmd(ctx context.Context, cmd *cobra.Command, cmdArgs []string, config *types.WalletConfig, factory sdktypes.CapabilityFactory) error {
	output, err := cmd.Flags().GetString(args.OutputCmdName)
	if err != nil {
		return err
	}

	if len(cmdArgs) == 1 {
		store, err := txstore.NewTxStore(config.WalletHomeDir)
		if err != nil {
			return err
		}
		defer store.Close()
		rec, err := store.GetByID(cmdArgs[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", wallet.ErrTxNotFound, cmdArgs[0])
		}
		printRecord(config.Base.ConsoleWriter, rec)
		return nil
	}

	w, err := connectWallet(ctx, cmd, config, factory)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := waitForReady(ctx, cmd, w); err != nil {
		config.Base.ConsoleWriter.Println("Warning: connection not ready: " + err.Error())
	}
	status := w.GetConnectionStatus()
	quiet, err := cmd.Flags().GetBool(args.QuietCmdName)
	if err != nil {
		return err
	}
	if quiet {
		config.Base.ConsoleWriter.Println(status.AvailableBalance)
		return nil
	}
	if output == "yaml" {
		out, err := yaml.Marshal(status)
		if err != nil {
			return fmt.Errorf("failed to render status: %w", err)
		}
		config.Base.ConsoleWriter.Print(string(out))
		return nil
	}
	config.Base.ConsoleWriter.Println(fmt.Sprintf("ready: %t", status.Ready))
	config.Base.ConsoleWriter.Println(fmt.Sprintf("recovering: %t (attempts %d)", status.Recovering, status.RecoveryAttempts))
	config.Base.ConsoleWriter.Println(fmt.Sprintf("apply gap: %d, source gap: %d", status.ApplyGap, status.SourceGap))
	config.Base.ConsoleWriter.Println("address: " + status.Address)
	config.Base.ConsoleWriter.Println("available balance: " + status.AvailableBalance)
	config.Base.ConsoleWriter.Println("pending balance: " + status.PendingBalance)
	return nil
}

func ListCmd(config *types.WalletConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "lists all transactions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execListCmd(config, false)
		},
	}
}

func PendingCmd(config *types.WalletConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "lists transactions that have not reached a terminal state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execListCmd(config, true)
		},
	}
}

func execListCmd(config *types.WalletConfig, pendingOnly bool) error {
	store, err := txstore.NewTxStore(config.WalletHomeDir)
	if err != nil {
		return err
	}
	defer store.Close()

	var records []*txstore.Record
	if pendingOnly {
		records, err = store.ListPending()
	} else {
		records, err = store.ListAll()
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		config.Base.ConsoleWriter.Println("No transactions")
		return nil
	}
	for _, rec := range records {
		printRecord(config.Base.ConsoleWriter, rec)
	}
	return nil
}

func printRecord(consoleWriter types.ConsoleWrapper, rec *txstore.Record) {
	line := fmt.Sprintf("%s %s %s -> %s", rec.ID, rec.State, rec.Amount, rec.ToAddress)
	if rec.LedgerID != "" {
		line += " ledger:" + rec.LedgerID
	}
	if rec.ErrorMessage != "" {
		line += " error:" + rec.ErrorMessage
	}
	consoleWriter.Println(line)
}

func InitWalletConfig(cmd *cobra.Command, config *types.WalletConfig) error {
	walletLocation, err := cmd.Flags().GetString(args.WalletLocationCmdName)
	if err != nil {
		return err
	}
	if walletLocation != "" {
		config.WalletHomeDir = walletLocation
	} else {
		config.WalletHomeDir = filepath.Join(config.Base.HomeDir, "wallet")
	}
	return nil
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().String(args.NetworkCmdName, args.DefaultNetwork, "ledger network identifier")
	cmd.Flags().String(args.NodeUrl, args.DefaultNodeUrl, "ledger node url")
	cmd.Flags().String(args.IndexerUrl, args.DefaultIndexerUrl, "indexer url")
	cmd.Flags().String(args.ProverUrl, args.DefaultProverUrl, "prover url")
	cmd.Flags().Duration(args.ReadyTimeoutCmdName, 30*time.Second, "how long to wait for the wallet to sync")
}

// connectWallet unlocks the stored seed and opens the wallet through the
// injected capability factory.
func connectWallet(ctx context.Context, cmd *cobra.Command, config *types.WalletConfig, factory sdktypes.CapabilityFactory) (*wallet.Wallet, error) {
	walletSeed, err := seed.Load(config.WalletHomeDir)
	if err != nil {
		return nil, err
	}
	capCfg, err := capabilityConfig(cmd, config, walletSeed)
	if err != nil {
		return nil, err
	}
	return wallet.NewWallet(ctx, factory, capCfg, wallet.Config{HomeDir: config.WalletHomeDir}, config.Base.Logger)
}

func capabilityConfig(cmd *cobra.Command, config *types.WalletConfig, walletSeed []byte) (sdktypes.CapabilityConfig, error) {
	network, err := cmd.Flags().GetString(args.NetworkCmdName)
	if err != nil {
		return sdktypes.CapabilityConfig{}, err
	}
	nodeUrl, err := cmd.Flags().GetString(args.NodeUrl)
	if err != nil {
		return sdktypes.CapabilityConfig{}, err
	}
	indexerUrl, err := cmd.Flags().GetString(args.IndexerUrl)
	if err != nil {
		return sdktypes.CapabilityConfig{}, err
	}
	proverUrl, err := cmd.Flags().GetString(args.ProverUrl)
	if err != nil {
		return sdktypes.CapabilityConfig{}, err
	}
	return sdktypes.CapabilityConfig{
		NetworkID:    network,
		Seed:         walletSeed,
		FilenameHint: filepath.Base(config.WalletHomeDir),
		NodeURL:      args.BuildRpcUrl(nodeUrl),
		IndexerURL:   args.BuildRpcUrl(indexerUrl),
		ProverURL:    args.BuildRpcUrl(proverUrl),
	}, nil
}

func waitForReady(ctx context.Context, cmd *cobra.Command, w *wallet.Wallet) error {
	timeout, err := cmd.Flags().GetDuration(args.ReadyTimeoutCmdName)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		if w.GetConnectionStatus().Ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wallet did not sync within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
