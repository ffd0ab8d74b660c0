package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/nanoledger/cli/node"
	"github.com/andydunstall/nanoledger/cli/send"
	"github.com/andydunstall/nanoledger/cli/status"
	"github.com/andydunstall/nanoledger/cli/verify"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nanoledger [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Nanoledger is a tamper-evident packet ledger.

Senders emit packets that are chained by hash, so a missing or modified packet
is detected. Nanoledger nodes receive packets, replicate them with their peers
using signed gossip, and periodically anchor the Merkle root of each batch of
packets to an external service. Anyone holding a packet, its inclusion proof
and the anchored root can verify the packet was recorded.

Start a node with:

  $ nanoledger node

Send packets to the node with:

  $ nanoledger send foo bar car

You can also inspect the status of the node using:

  $ nanoledger status

Then verify a packet was anchored with:

  $ nanoledger verify --packet packet.bin --proof proof.json --root <root>
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(send.NewCommand())
	cmd.AddCommand(status.NewCommand())
	cmd.AddCommand(verify.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
