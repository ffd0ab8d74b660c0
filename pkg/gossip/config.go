package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the UDP address to listen for gossip traffic.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address peers use to reach this node.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// Peers contains the gossip addresses of the nodes to announce to.
	Peers []string `json:"peers" yaml:"peers"`

	// Interval is the rate to announce the local chain tip.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// MaxPacketSize is the maximum size of any datagram sent or received.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// StoreCapacity is the maximum number of packets held in memory.
	StoreCapacity int `json:"store_capacity" yaml:"store_capacity"`

	// MaxBackfillDepth is the maximum number of previous packets requested
	// when repairing a single chain.
	MaxBackfillDepth int `json:"max_backfill_depth" yaml:"max_backfill_depth"`

	// RepairTimeout is how long a repair waits for a response before it is
	// discarded.
	RepairTimeout time.Duration `json:"repair_timeout" yaml:"repair_timeout"`

	// DedupTTL is how long a received datagram is remembered to skip
	// duplicates. Zero disables deduplication.
	DedupTTL time.Duration `json:"dedup_ttl" yaml:"dedup_ttl"`
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr:         ":7400",
		Interval:         time.Second * 3,
		MaxPacketSize:    16 * 1024,
		StoreCapacity:    100,
		MaxBackfillDepth: 64,
		RepairTimeout:    time.Second * 30,
		DedupTTL:         time.Millisecond * 500,
	}
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("missing max packet size")
	}
	if c.StoreCapacity <= 0 {
		return fmt.Errorf("store capacity must be positive")
	}
	if c.MaxBackfillDepth < 0 {
		return fmt.Errorf("max backfill depth must not be negative")
	}
	if c.RepairTimeout <= 0 {
		return fmt.Errorf("missing repair timeout")
	}
	if c.DedupTTL < 0 {
		return fmt.Errorf("dedup ttl must not be negative")
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
The host/port to listen for gossip traffic from peers (UDP).

If the host is unspecified it defaults to all listeners, such as
a bind address ':7400' will listen on '0.0.0.0:7400'`,
	)

	fs.StringVar(
		&c.AdvertiseAddr,
		prefix+"advertise-addr",
		c.AdvertiseAddr,
		`
Gossip address to advertise to peers.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':7400') the nodes
private IP will be used.`,
	)

	fs.StringSliceVar(
		&c.Peers,
		prefix+"peers",
		c.Peers,
		`
A list of peer gossip addresses to announce the local chain tip to.

Such as '--gossip.peers 10.26.104.14:7400,10.26.104.75:7400'.`,
	)

	fs.DurationVar(
		&c.Interval,
		prefix+"interval",
		c.Interval,
		`
The interval to announce the local chain tip to peers.

Lost requests and responses are retried on the next announce round.`,
	)

	fs.IntVar(
		&c.MaxPacketSize,
		prefix+"max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of any datagram sent or received.

Responses containing packets larger than this are not sent.`,
	)

	fs.IntVar(
		&c.StoreCapacity,
		prefix+"store-capacity",
		c.StoreCapacity,
		`
The maximum number of packets to hold in memory. When full the oldest
packet is evicted.`,
	)

	fs.IntVar(
		&c.MaxBackfillDepth,
		prefix+"max-backfill-depth",
		c.MaxBackfillDepth,
		`
The maximum number of previous packets to request when repairing a chain
from a single announce.`,
	)

	fs.DurationVar(
		&c.RepairTimeout,
		prefix+"repair-timeout",
		c.RepairTimeout,
		`
How long to wait for a response to a repair request before discarding it.`,
	)

	fs.DurationVar(
		&c.DedupTTL,
		prefix+"dedup-ttl",
		c.DedupTTL,
		`
How long to remember received datagrams to skip duplicates. Set to 0 to
disable.`,
	)
}
