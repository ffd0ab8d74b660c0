package ingest

import (
	"fmt"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the UDP address to listen for packets from senders.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// MaxPacketSize is the maximum size of a received packet.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// MaxSenders is the maximum number of senders to track the expected
	// previous hash of.
	MaxSenders int `json:"max_senders" yaml:"max_senders"`
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr:      ":7401",
		MaxPacketSize: 8 * 1024,
		MaxSenders:    1024,
	}
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("missing max packet size")
	}
	if c.MaxSenders <= 0 {
		return fmt.Errorf("max senders must be positive")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	prefix = prefix + "."

	fs.StringVar(
		&c.BindAddr,
		prefix+"bind-addr",
		c.BindAddr,
		`
The host/port to listen for packets from senders (UDP). Each datagram
contains a single encoded packet.

If the host is unspecified it defaults to all listeners, such as
a bind address ':7401' will listen on '0.0.0.0:7401'`,
	)

	fs.IntVar(
		&c.MaxPacketSize,
		prefix+"max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of a received packet. Larger datagrams are truncated and
will fail verification.

Packets are sent to peers with a signature and header, so this should be less
than '--gossip.max-packet-size'.`,
	)

	fs.IntVar(
		&c.MaxSenders,
		prefix+"max-senders",
		c.MaxSenders,
		`
The maximum number of senders to track the chain of. When exceeded a
tracked sender is forgotten, so its next packet is logged as a chain break.`,
	)
}
