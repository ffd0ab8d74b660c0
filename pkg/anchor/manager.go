package anchor

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/nanoledger/pkg/log"
	"github.com/andydunstall/nanoledger/pkg/merkle"
)

// Manager batches packets and anchors the Merkle root of each batch.
//
// Packets are buffered until either the buffer reaches the configured batch
// size, or the anchor interval elapses with packets buffered. A batch is
// removed from the buffer before it is committed, so packets added during a
// slow commit are buffered for the next batch. If the commit fails the batch
// is restored to the front of the buffer and retried on the next tick. Until
// then reaching the batch size doesn't trigger another commit.
type Manager struct {
	conf *Config

	committer Committer
	ledger    Ledger
	now       func() time.Time

	// mu protects the fields below.
	mu         sync.Mutex
	buffer     [][]byte
	lastAnchor time.Time
	// retryPending is set when a commit fails and cleared once a commit
	// succeeds.
	retryPending bool

	// commitMu ensures only one batch is committed at a time.
	commitMu sync.Mutex

	// triggerCh wakes the tick loop when Enqueue fills a batch.
	triggerCh chan struct{}

	running    *atomic.Bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup

	metrics *Metrics

	logger log.Logger
}

func NewManager(conf *Config, opts ...Option) *Manager {
	options := options{
		logger: log.NewNopLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o.apply(&options)
	}
	if options.committer == nil {
		options.committer = NewLocalCommitter(0, options.logger)
	}
	if options.ledger == nil {
		options.ledger = NewMemoryLedger()
	}

	return &Manager{
		conf:       conf,
		committer:  options.committer,
		ledger:     options.ledger,
		now:        options.now,
		lastAnchor: options.now(),
		triggerCh:  make(chan struct{}, 1),
		running:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		metrics:    NewMetrics(),
		logger:     options.logger.WithSubsystem("anchor"),
	}
}

func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// AddPacket buffers the encoded packet. If the buffer reaches the batch size
// the batch is anchored before returning, and the new record is returned.
// Otherwise returns nil.
//
// After a failed commit the batch isn't anchored until the next tick, even if
// the buffer is full.
func (m *Manager) AddPacket(ctx context.Context, b []byte) (*Record, error) {
	if !m.bufferPacket(b) {
		return nil, nil
	}
	return m.anchor(ctx)
}

// Enqueue buffers the encoded packet without blocking on a commit. If the
// buffer reaches the batch size the batch is anchored by the tick loop, so
// the manager must be started.
func (m *Manager) Enqueue(b []byte) {
	if !m.bufferPacket(b) {
		return
	}
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

// Tick anchors the buffered packets if the anchor interval has elapsed since
// the last anchor, or the last commit failed.
func (m *Manager) Tick(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	due := len(m.buffer) > 0 &&
		(m.retryPending || m.now().Sub(m.lastAnchor) >= m.conf.Interval)
	m.mu.Unlock()

	if !due {
		return nil, nil
	}
	return m.anchor(ctx)
}

// Flush anchors the buffered packets regardless of the batch size or
// interval. Returns nil if there are no buffered packets.
func (m *Manager) Flush(ctx context.Context) (*Record, error) {
	return m.anchor(ctx)
}

// Buffered returns the number of buffered packets.
func (m *Manager) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.buffer)
}

// Start periodically checks whether the buffered packets are due to be
// anchored.
func (m *Manager) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.tickLoop()
	}()
}

// Stop stops the periodic tick. A commit in progress is not cancelled, but
// Stop waits for it to complete.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.shutdownCh)
	m.wg.Wait()
}

// Records returns all anchor records.
func (m *Manager) Records() ([]Record, error) {
	return m.ledger.List()
}

// Record returns the anchor record with the given external ID.
func (m *Manager) Record(id string) (Record, error) {
	return m.ledger.Get(id)
}

// Proof returns the inclusion proof for the leaf at the given index of the
// batch with the given external ID, along with the leaf itself.
func (m *Manager) Proof(id string, index int) (merkle.Proof, []byte, error) {
	rec, err := m.ledger.Get(id)
	if err != nil {
		return nil, nil, err
	}
	leaves, err := m.ledger.Leaves(id)
	if err != nil {
		return nil, nil, err
	}

	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, nil, fmt.Errorf("build tree: %w", err)
	}
	if hex.EncodeToString(tree.Root()) != rec.Root {
		return nil, nil, fmt.Errorf("batch root mismatch: %s", id)
	}

	proof, err := tree.Proof(index)
	if err != nil {
		return nil, nil, err
	}
	return proof, leaves[index], nil
}

func (m *Manager) tickLoop() {
	ticker := time.NewTicker(m.conf.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.Tick(context.Background()); err != nil {
				m.logger.Warn("anchor failed", zap.Error(err))
			}
		case <-m.triggerCh:
			m.mu.Lock()
			full := m.full()
			m.mu.Unlock()
			if !full {
				continue
			}
			if _, err := m.anchor(context.Background()); err != nil {
				m.logger.Warn("anchor failed", zap.Error(err))
			}
		case <-m.shutdownCh:
			return
		}
	}
}

func (m *Manager) anchor(ctx context.Context) (*Record, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.Lock()
	batch := m.buffer
	m.buffer = nil
	m.metrics.PacketsBuffered.Set(0)
	m.mu.Unlock()

	if len(batch) == 0 {
		return nil, nil
	}

	tree, err := merkle.New(batch)
	if err != nil {
		m.restore(batch)
		return nil, fmt.Errorf("build tree: %w", err)
	}
	root := hex.EncodeToString(tree.Root())

	id, err := m.committer.Commit(ctx, root)
	if err != nil {
		m.restore(batch)
		m.mu.Lock()
		m.retryPending = true
		m.mu.Unlock()
		m.metrics.CommitFailures.Inc()
		m.logger.Warn(
			"failed to commit root",
			zap.String("root", root),
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	now := m.now()
	rec := Record{
		ExternalID: id,
		Root:       root,
		Timestamp:  now.UTC(),
		Count:      len(batch),
	}

	m.mu.Lock()
	m.lastAnchor = now
	m.retryPending = false
	m.mu.Unlock()

	// The root is already committed so the batch isn't restored if it
	// can't be recorded.
	if err := m.ledger.Put(rec, batch); err != nil {
		m.logger.Error(
			"failed to record anchor",
			zap.String("id", id),
			zap.String("root", root),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record anchor: %w", err)
	}

	m.metrics.BatchesAnchored.Inc()
	m.metrics.BatchSize.Observe(float64(len(batch)))

	m.logger.Info(
		"anchored batch",
		zap.String("id", id),
		zap.String("root", root),
		zap.Int("count", len(batch)),
	)

	return &rec, nil
}

// restore adds the batch back to the front of the buffer.
func (m *Manager) restore(batch [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer = append(batch, m.buffer...)
	m.metrics.PacketsBuffered.Set(float64(len(m.buffer)))
}

// bufferPacket appends a copy of the encoded packet and returns whether the
// batch should be anchored.
func (m *Manager) bufferPacket(b []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer = append(m.buffer, bytes.Clone(b))
	m.metrics.PacketsBuffered.Set(float64(len(m.buffer)))
	return m.full()
}

// full returns whether the buffer has reached the batch size and isn't
// waiting for a failed commit to be retried. Requires mu.
func (m *Manager) full() bool {
	return len(m.buffer) >= m.conf.BatchSize && !m.retryPending
}
