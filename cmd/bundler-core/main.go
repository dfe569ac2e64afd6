// Command bundler-core wires together the mempool, gas-price manager, and
// sender manager against a live RPC endpoint, the same dial-then-drive shape
// as the toolbox exercise's subcommands, generalized with cobra/viper the way
// the stackup-bundler family structures its CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dando385/erc4337-bundler-core/internal/config"
	"github.com/dando385/erc4337-bundler-core/internal/logging"
	"github.com/dando385/erc4337-bundler-core/pkg/chainclient"
	"github.com/dando385/erc4337-bundler-core/pkg/gasprice"
	"github.com/dando385/erc4337-bundler-core/pkg/mempool"
	"github.com/dando385/erc4337-bundler-core/pkg/sender"
)

var (
	rpcURL     string
	cfgFile    string
	entryPoint string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "bundler-core",
		Short: "ERC-4337 mempool, gas-price, and sender-pool core",
	}
	root.PersistentFlags().StringVar(&rpcURL, "rpc", os.Getenv("BUNDLER_RPC_URL"), "RPC endpoint")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (BUNDLER_ env vars always apply)")
	root.PersistentFlags().StringVar(&entryPoint, "entry-point", "", "EntryPoint contract address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "per-command RPC timeout")
	viper.BindPFlag("rpc_url", root.PersistentFlags().Lookup("rpc"))

	root.AddCommand(gasPriceCmd(), reconcileCmd(), walletsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func dial(ctx context.Context) (*chainclient.EthClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("bundler-core: --rpc or BUNDLER_RPC_URL is required")
	}
	return chainclient.DialContext(ctx, rpcURL)
}

// gasPriceCmd prints one computed gas quote, the same single-shot diagnostic
// shape as the eip1559 exercise's main, generalized across chains.
func gasPriceCmd() *cobra.Command {
	var chain string
	cmd := &cobra.Command{
		Use:   "gas-price",
		Short: "Compute and print one gas quote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			client, err := dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			log := logging.New("gasprice")
			mgr := gasprice.New(client, gasprice.Chain(chain), cfg.GasPriceBump, cfg.GasPriceExpiry,
				cfg.GasPriceRefreshInterval, cfg.LegacyTransactions, gasprice.WithLogger(log))

			quote, err := mgr.GetGasPrice(ctx)
			if err != nil {
				return fmt.Errorf("bundler-core: computing gas price: %w", err)
			}
			fmt.Printf("maxFeePerGas=%s maxPriorityFeePerGas=%s\n", quote.MaxFeePerGas, quote.MaxPriorityFeePerGas)
			return nil
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "", "chain override (polygon, celo, dfk, avalanche, hedera, arbitrum, polygon-mumbai, celo-alfajores)")
	return cmd
}

// reconcileCmd runs one mempool reconcile pass and prints the sizes of the
// available-outstanding and outstanding sets. The mempool is freshly built
// and empty, so the pass has no operations to check and sends no getNonce
// queries to the EntryPoint; both sizes print as zero.
func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one mempool reconciliation pass against the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if entryPoint == "" {
				return fmt.Errorf("bundler-core: --entry-point is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			client, err := dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			log := logging.New("mempool")
			pool := mempool.New(mempool.WithLogger(log))

			if err := pool.UpdateAvailableUserOperations(ctx, client, common.HexToAddress(entryPoint)); err != nil {
				return fmt.Errorf("bundler-core: reconciling mempool: %w", err)
			}
			fmt.Printf("available=%d outstanding=%d\n", len(pool.DumpAvailableOutstanding()), len(pool.DumpOutstanding()))
			return nil
		},
	}
	return cmd
}

// walletsCmd loads the configured executor keys into a local sender pool and
// lists the addresses it manages, a read-only check of §4.3 wiring.
func walletsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallets",
		Short: "List the executor addresses loaded from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := newSenderManager(cfg)
			if err != nil {
				return err
			}
			for _, w := range mgr.GetAllWallets() {
				fmt.Println(w.Address.Hex())
			}
			return nil
		},
	}
}

// newSenderManager builds the configured local sender-pool backend from the
// executor private keys in cfg. A deployment that shares a pool across
// processes would build sender.NewShared against a redis.Cmdable here
// instead.
func newSenderManager(cfg *config.Config) (sender.Manager, error) {
	wallets := make([]*sender.Wallet, 0, len(cfg.ExecutorPrivateKeys))
	for _, hexKey := range cfg.ExecutorPrivateKeys {
		w, err := sender.WalletFromHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("bundler-core: loading executor key: %w", err)
		}
		wallets = append(wallets, w)
	}
	return sender.NewLocal(wallets, cfg.MaxExecutors), nil
}
