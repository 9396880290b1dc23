package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nightvault/agent-wallet/cli/agentwallet/cmd/types"
	"github.com/nightvault/agent-wallet/cli/agentwallet/cmd/wallet"
	sdktypes "github.com/nightvault/agent-wallet/client/types"
)

type WalletApp struct {
	baseCmd  *cobra.Command
	baseConf *types.BaseConfiguration
}

// New creates a new agent wallet application. The capability factory binds
// the CLI to a concrete ledger client.
func New(factory sdktypes.CapabilityFactory) *WalletApp {
	baseCmd, baseConfig := newBaseCmd()
	app := &WalletApp{baseCmd: baseCmd, baseConf: baseConfig}
	app.AddSubcommands(factory)
	return app
}

// Execute runs the application
func (a *WalletApp) Execute(ctx context.Context) error {
	return a.baseCmd.ExecuteContext(ctx)
}

func (a *WalletApp) AddSubcommands(factory sdktypes.CapabilityFactory) {
	a.baseCmd.AddCommand(wallet.NewWalletCmd(a.baseConf, factory))
}

func newBaseCmd() (*cobra.Command, *types.BaseConfiguration) {
	config := &types.BaseConfiguration{}
	// BaseCmd represents the base command when called without any subcommands
	var baseCmd = &cobra.Command{
		Use:           "agentwallet",
		Short:         "The agent wallet CLI",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// You can bind cobra and viper in a few locations, but PersistencePreRunE on the base command works well
			// If subcommand does not define PersistentPreRunE, the one from base cmd is used.
			if err := types.InitializeConfig(cmd, config); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return nil
		},
	}
	config.AddConfigurationFlags(baseCmd)
	return baseCmd, config
}
