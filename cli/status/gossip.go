package status

import (
	"fmt"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/nanoledger/pkg/gossip"
	"github.com/andydunstall/nanoledger/status/client"
	"github.com/andydunstall/nanoledger/status/config"
)

func newGossipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gossip",
		Short: "inspect gossip state",
	}

	cmd.AddCommand(newGossipTipCommand())
	cmd.AddCommand(newGossipPacketsCommand())
	cmd.AddCommand(newGossipPacketCommand())

	return cmd
}

func newGossipTipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tip",
		Short: "inspect the chain tip",
		Long: `Inspect the chain tip.

Queries the node for the hash of its local chain tip, which is the last packet
the node received or learned from a peer.

Examples:
  nanoledger status gossip tip
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showGossipTip(&conf)
	}

	return cmd
}

func showGossipTip(conf *config.Config) {
	client := newClient(conf)
	defer client.Close()

	tip, err := client.GossipTip()
	if err != nil {
		fmt.Printf("failed to get gossip tip: %s\n", err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(tip)
	fmt.Println(string(b))
}

func newGossipPacketsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packets",
		Short: "inspect stored packets",
		Long: `Inspect stored packets.

Queries the node for the packets held in its packet store, oldest first.

Examples:
  nanoledger status gossip packets
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showGossipPackets(&conf)
	}

	return cmd
}

type gossipPacketsOutput struct {
	Packets []gossip.PacketInfo `json:"packets"`
}

func showGossipPackets(conf *config.Config) {
	client := newClient(conf)
	defer client.Close()

	packets, err := client.GossipPackets()
	if err != nil {
		fmt.Printf("failed to get gossip packets: %s\n", err.Error())
		os.Exit(1)
	}

	output := gossipPacketsOutput{
		Packets: packets,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newGossipPacketCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packet",
		Args:  cobra.ExactArgs(1),
		Short: "inspect a stored packet",
		Long: `Inspect a stored packet.

Queries the node for the packet with the given hex hash.

Examples:
  nanoledger status gossip packet 5d0a3f6c1b2e4d7a
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showGossipPacket(args[0], &conf)
	}

	return cmd
}

func showGossipPacket(hash string, conf *config.Config) {
	client := newClient(conf)
	defer client.Close()

	p, err := client.GossipPacket(hash)
	if err != nil {
		fmt.Printf("failed to get gossip packet: %s: %s\n", hash, err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(p)
	fmt.Println(string(b))
}

func newClient(conf *config.Config) *client.Client {
	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.Server.URL)
	return client.NewClient(url)
}
