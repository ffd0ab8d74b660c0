package anchor

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// BatchSize is the number of buffered packets that triggers an anchor.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Interval is the maximum time between anchors while packets are
	// buffered.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// TickInterval is how often to check whether the anchor interval has
	// elapsed.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// DataDir is the directory of the persisted ledger. If empty, anchor
	// records are only held in memory.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// CommitURL is the HTTP endpoint to commit Merkle roots to. If empty,
	// roots are not anchored externally and records get a local placeholder
	// ID.
	CommitURL string `json:"commit_url" yaml:"commit_url"`

	// CommitTimeout is the timeout for a single commit request.
	CommitTimeout time.Duration `json:"commit_timeout" yaml:"commit_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		BatchSize:     64,
		Interval:      time.Minute,
		TickInterval:  time.Second * 5,
		CommitTimeout: time.Second * 30,
	}
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("missing tick interval")
	}
	if c.CommitURL != "" && c.CommitTimeout <= 0 {
		return fmt.Errorf("missing commit timeout")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	prefix = prefix + "."

	fs.IntVar(
		&c.BatchSize,
		prefix+"batch-size",
		c.BatchSize,
		`
The number of buffered packets that triggers an anchor.`,
	)

	fs.DurationVar(
		&c.Interval,
		prefix+"interval",
		c.Interval,
		`
The maximum time between anchors while there are buffered packets, even if
the batch size hasn't been reached.`,
	)

	fs.DurationVar(
		&c.TickInterval,
		prefix+"tick-interval",
		c.TickInterval,
		`
How often to check whether the anchor interval has elapsed. Failed commits
are retried on the next tick.`,
	)

	fs.StringVar(
		&c.DataDir,
		prefix+"data-dir",
		c.DataDir,
		`
The directory to persist anchor records and batches to.

If empty, records are only held in memory and are lost when the node
restarts.`,
	)

	fs.StringVar(
		&c.CommitURL,
		prefix+"commit-url",
		c.CommitURL,
		`
The URL of the anchoring service to commit Merkle roots to.

The node sends a POST request with body '{"root": "<hex>"}' and expects a
response '{"id": "<external id>"}'.

If empty, roots are NOT anchored externally. Records get a local placeholder
ID prefixed with 'local-' which must not be treated as an external
commitment.`,
	)

	fs.DurationVar(
		&c.CommitTimeout,
		prefix+"commit-timeout",
		c.CommitTimeout,
		`
The timeout for each request to the anchoring service.`,
	)
}
