package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/nanoledger/node"
	"github.com/andydunstall/nanoledger/node/config"
	nanoledgerconfig "github.com/andydunstall/nanoledger/pkg/config"
	"github.com/andydunstall/nanoledger/pkg/log"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a ledger node",
		Long: `Start a ledger node.

The node receives packets from senders on the ingest port, replicates them
with its peers using gossip, and periodically anchors the Merkle root of each
batch of packets.

Peers are configured with '--gossip.peers'. The node announces its chain tip
to each peer, and peers request any packets they are missing.

Examples:
  # Start a node.
  nanoledger node

  # Start a node, listening for gossip on :7000, packets on :7001 and admin
  # connections on :7002.
  nanoledger node --gossip.bind-addr :7000 --ingest.bind-addr :7001 --admin.bind-addr :7002

  # Start a node that replicates with two peers.
  nanoledger node --gossip.peers 10.26.104.14:7400,10.26.104.75:7400

  # Start a node that persists anchor records and commits roots to an
  # external anchoring service.
  nanoledger node --anchor.data-dir /var/lib/nanoledger --anchor.commit-url http://anchor.local/commit
`,
	}

	conf := config.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := nanoledgerconfig.Load(conf, configPath, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if err := conf.SetDefaults(); err != nil {
			logger.Error("invalid configuration", zap.Error(err))
			os.Exit(1)
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *config.Config, logger log.Logger) error {
	n, err := node.New(conf, logger)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	return n.Run(ctx)
}
