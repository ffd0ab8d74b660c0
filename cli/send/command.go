package send

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/andydunstall/nanoledger/pkg/packet"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [flags] message...",
		Args:  cobra.MinimumNArgs(1),
		Short: "send packets to a node",
		Long: `Send packets to a node.

Each message is encoded as a packet chained to the previous message, and sent
to the node ingest address as a single datagram.

Examples:
  # Send three chained packets to the local node.
  nanoledger send foo bar car

  # Send a critical packet to node 10.26.104.14.
  nanoledger send --addr 10.26.104.14:7401 --critical alert
`,
	}

	var addr string
	cmd.Flags().StringVar(
		&addr,
		"addr",
		"localhost:7401",
		`
The node ingest address.`,
	)

	var critical bool
	cmd.Flags().BoolVar(
		&critical,
		"critical",
		false,
		`
Whether to mark the packets as critical.`,
	)

	var prev string
	cmd.Flags().StringVar(
		&prev,
		"prev",
		"",
		`
Hex hash of the packet the first message follows. Defaults to the zero hash,
which starts a new chain.`,
	)

	var delay time.Duration
	cmd.Flags().DurationVar(
		&delay,
		"delay",
		0,
		`
Delay between sending each packet.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		prevHash := packet.ZeroHash
		if prev != "" {
			var err error
			prevHash, err = packet.ParseHash(prev)
			if err != nil {
				fmt.Printf("invalid prev: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := send(addr, prevHash, critical, delay, args); err != nil {
			fmt.Printf("failed to send: %s\n", err.Error())
			os.Exit(1)
		}
	}

	return cmd
}

func send(
	addr string,
	prev packet.Hash,
	critical bool,
	delay time.Duration,
	messages []string,
) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial: %s: %w", addr, err)
	}
	defer conn.Close()

	chain := packet.NewChain(prev)
	for i, m := range messages {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}

		p := chain.Next(critical, []byte(m))
		if _, err := conn.Write(p.Bytes()); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		fmt.Println(p.Hash.String())
	}
	return nil
}
