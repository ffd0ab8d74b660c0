package status

import "github.com/spf13/cobra"

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each node exposes a status API on its admin port to inspect the state of the
node, this can be used to answer questions such as:
* What is the nodes chain tip?
* Which packets does the node hold?
* Which batches has the node anchored?
* What is the inclusion proof for an anchored packet?

See 'status --help' for the available commands.

Examples:
  # Inspect the chain tip of the local node.
  nanoledger status gossip tip

  # Inspect the anchor records of the local node.
  nanoledger status anchor records

  # Inspect the chain tip of node 10.26.104.56:7402.
  nanoledger status gossip tip --server.url http://10.26.104.56:7402
`,
	}

	cmd.AddCommand(newGossipCommand())
	cmd.AddCommand(newAnchorCommand())

	return cmd
}
