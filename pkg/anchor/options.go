package anchor

import (
	"time"

	"github.com/andydunstall/nanoledger/pkg/log"
)

type options struct {
	committer Committer
	ledger    Ledger
	logger    log.Logger
	now       func() time.Time
}

type Option interface {
	apply(*options)
}

type committerOption struct {
	Committer Committer
}

func (o committerOption) apply(opts *options) {
	opts.committer = o.Committer
}

// WithCommitter configures the committer used to anchor roots. Defaults to
// a LocalCommitter.
func WithCommitter(c Committer) Option {
	return committerOption{Committer: c}
}

type ledgerOption struct {
	Ledger Ledger
}

func (o ledgerOption) apply(opts *options) {
	opts.ledger = o.Ledger
}

// WithLedger configures the ledger to record anchors in. Defaults to a
// MemoryLedger.
func WithLedger(l Ledger) Option {
	return ledgerOption{Ledger: l}
}

type loggerOption struct {
	Logger log.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.logger = o.Logger
}

func WithLogger(l log.Logger) Option {
	return loggerOption{Logger: l}
}

type clockOption func() time.Time

func (o clockOption) apply(opts *options) {
	opts.now = o
}

func WithClock(now func() time.Time) Option {
	return clockOption(now)
}
