package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	sockaddr "github.com/hashicorp/go-sockaddr"
	"github.com/spf13/pflag"

	"github.com/andydunstall/nanoledger/node/ingest"
	"github.com/andydunstall/nanoledger/pkg/anchor"
	"github.com/andydunstall/nanoledger/pkg/gossip"
	"github.com/andydunstall/nanoledger/pkg/log"
)

type NodeConfig struct {
	// ID is a unique identifier for the node.
	//
	// Defaults to the gossip advertise address.
	ID string `json:"id" yaml:"id"`

	// KeyFile is the path of the hex encoded Ed25519 seed used to sign
	// gossip messages. If the file doesn't exist a new key is generated and
	// written to the path. If empty, an ephemeral key is used.
	KeyFile string `json:"key_file" yaml:"key_file"`
}

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

type Config struct {
	Node   NodeConfig    `json:"node" yaml:"node"`
	Gossip gossip.Config `json:"gossip" yaml:"gossip"`
	Ingest ingest.Config `json:"ingest" yaml:"ingest"`
	Anchor anchor.Config `json:"anchor" yaml:"anchor"`
	Admin  AdminConfig   `json:"admin" yaml:"admin"`
	Log    log.Config    `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the node. This
	// includes waiting for in-progress admin requests and flushing the
	// anchor buffer.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func Default() *Config {
	return &Config{
		Gossip: *gossip.DefaultConfig(),
		Ingest: *ingest.DefaultConfig(),
		Anchor: *anchor.DefaultConfig(),
		Admin: AdminConfig{
			BindAddr: ":7402",
		},
		Log: log.Config{
			Level:  "info",
			Format: "json",
		},
		GracePeriod: time.Second * 30,
	}
}

func (c *Config) Validate() error {
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := c.Anchor.Validate(); err != nil {
		return fmt.Errorf("anchor: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if c.Ingest.MaxPacketSize >= c.Gossip.MaxPacketSize {
		return fmt.Errorf("ingest max packet size must be less than gossip max packet size")
	}

	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Node.ID,
		"node.id",
		c.Node.ID,
		`
A unique identifier for the node, included in gossip announcements.

By default the gossip advertise address is used.`,
	)
	fs.StringVar(
		&c.Node.KeyFile,
		"node.key-file",
		c.Node.KeyFile,
		`
Path to the nodes Ed25519 signing key, stored as a hex encoded seed.

If the file doesn't exist a new key is generated and written to the path, so
the node keeps the same identity across restarts. If unset, a new key is
generated each time the node starts.`,
	)

	c.Gossip.RegisterFlags(fs, "gossip")
	c.Ingest.RegisterFlags(fs, "ingest")
	c.Anchor.RegisterFlags(fs, "anchor")

	fs.StringVar(
		&c.Admin.BindAddr,
		"admin.bind-addr",
		c.Admin.BindAddr,
		`
The host/port to listen for incoming admin connections.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :7402' will listen on '0.0.0.0:7402'`,
	)

	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		c.GracePeriod,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) to gracefully shutdown the node before terminating.
This includes handling in-progress admin requests and anchoring any
buffered packets.`,
	)
}

// SetDefaults populates the gossip advertise address and node ID when
// unset.
func (c *Config) SetDefaults() error {
	if c.Gossip.AdvertiseAddr == "" {
		advertiseAddr, err := AdvertiseAddrFromBindAddr(c.Gossip.BindAddr)
		if err != nil {
			return fmt.Errorf("gossip: %w", err)
		}
		c.Gossip.AdvertiseAddr = advertiseAddr
	}
	if c.Node.ID == "" {
		c.Node.ID = c.Gossip.AdvertiseAddr
	}
	return nil
}

// AdvertiseAddrFromBindAddr returns the address to advertise for the given
// bind address. If the bind address doesn't include a host, the nodes
// private IP is used.
func AdvertiseAddrFromBindAddr(bindAddr string) (string, error) {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "0.0.0.0" + bindAddr
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host == "0.0.0.0" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return ip + ":" + port, nil
	}
	return bindAddr, nil
}
