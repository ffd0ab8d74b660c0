package gossip

import (
	"time"

	"github.com/andydunstall/nanoledger/pkg/log"
)

type options struct {
	watcher Watcher
	logger  log.Logger
	now     func() time.Time
}

type Option interface {
	apply(*options)
}

func defaultOptions() options {
	return options{
		watcher: &nopWatcher{},
		logger:  log.NewNopLogger(),
		now:     time.Now,
	}
}

type watcherOption struct {
	Watcher Watcher
}

func (o watcherOption) apply(opts *options) {
	opts.watcher = o.Watcher
}

// WithWatcher configures a watcher to notify of packets learned from peers.
func WithWatcher(w Watcher) Option {
	return watcherOption{Watcher: w}
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

// WithClock overrides the clock used for announce timestamps and expiring
// repairs and deduplicated datagrams.
func WithClock(now func() time.Time) Option {
	return clockOption(now)
}
