package anchor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/nanoledger/pkg/merkle"
	"github.com/andydunstall/nanoledger/pkg/packet"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testPackets(n int) [][]byte {
	chain := packet.NewChain(packet.ZeroHash)
	var packets [][]byte
	for i := 0; i != n; i++ {
		packets = append(packets, chain.Next(false, []byte(fmt.Sprintf("packet-%d", i))).Bytes())
	}
	return packets
}

func testConfig(batchSize int, interval time.Duration) *Config {
	conf := DefaultConfig()
	conf.BatchSize = batchSize
	conf.Interval = interval
	return conf
}

func TestManager_AddPacket(t *testing.T) {
	t.Run("batch size", func(t *testing.T) {
		ledger := NewMemoryLedger()
		m := NewManager(testConfig(4, time.Hour), WithLedger(ledger))

		packets := testPackets(4)
		for _, b := range packets[:3] {
			rec, err := m.AddPacket(context.Background(), b)
			require.NoError(t, err)
			assert.Nil(t, rec)
		}
		rec, err := m.AddPacket(context.Background(), packets[3])
		require.NoError(t, err)
		require.NotNil(t, rec)

		assert.Equal(t, 4, rec.Count)
		assert.True(t, strings.HasPrefix(rec.ExternalID, "local-"))
		assert.Equal(t, 0, m.Buffered())

		tree, err := merkle.New(packets)
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(tree.Root()), rec.Root)

		records, err := ledger.List()
		require.NoError(t, err)
		assert.Equal(t, []Record{*rec}, records)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.Metrics().BatchesAnchored))
	})

	t.Run("copies packet", func(t *testing.T) {
		m := NewManager(testConfig(1, time.Hour))

		b := testPackets(1)[0]
		expected := append([]byte(nil), b...)
		rec, err := m.AddPacket(context.Background(), b)
		require.NoError(t, err)
		b[0] ^= 0xff

		_, leaf, err := m.Proof(rec.ExternalID, 0)
		require.NoError(t, err)
		assert.Equal(t, expected, leaf)
	})
}

func TestManager_Tick(t *testing.T) {
	t.Run("interval elapsed", func(t *testing.T) {
		clock := newFakeClock()
		m := NewManager(testConfig(100, time.Second), WithClock(clock.Now))

		for _, b := range testPackets(3) {
			rec, err := m.AddPacket(context.Background(), b)
			require.NoError(t, err)
			assert.Nil(t, rec)
		}

		rec, err := m.Tick(context.Background())
		require.NoError(t, err)
		assert.Nil(t, rec)

		clock.Advance(time.Second + time.Millisecond)

		rec, err = m.Tick(context.Background())
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 3, rec.Count)
		assert.Equal(t, clock.Now().UTC(), rec.Timestamp)
		assert.Equal(t, 0, m.Buffered())
	})

	t.Run("empty buffer", func(t *testing.T) {
		clock := newFakeClock()
		m := NewManager(testConfig(100, time.Second), WithClock(clock.Now))

		clock.Advance(time.Minute)

		rec, err := m.Tick(context.Background())
		require.NoError(t, err)
		assert.Nil(t, rec)

		records, err := m.Records()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("interval since last anchor", func(t *testing.T) {
		clock := newFakeClock()
		m := NewManager(testConfig(2, time.Second*10), WithClock(clock.Now))

		clock.Advance(time.Second * 8)
		packets := testPackets(3)
		_, err := m.AddPacket(context.Background(), packets[0])
		require.NoError(t, err)
		rec, err := m.AddPacket(context.Background(), packets[1])
		require.NoError(t, err)
		require.NotNil(t, rec)

		_, err = m.AddPacket(context.Background(), packets[2])
		require.NoError(t, err)

		// Not due since the last anchor was 2s ago.
		clock.Advance(time.Second * 2)
		rec, err = m.Tick(context.Background())
		require.NoError(t, err)
		assert.Nil(t, rec)

		clock.Advance(time.Second * 8)
		rec, err = m.Tick(context.Background())
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 1, rec.Count)
	})

	t.Run("scheduled", func(t *testing.T) {
		conf := testConfig(100, time.Millisecond)
		conf.TickInterval = time.Millisecond * 5
		m := NewManager(conf)
		m.Start()
		defer m.Stop()

		for _, b := range testPackets(3) {
			_, err := m.AddPacket(context.Background(), b)
			require.NoError(t, err)
		}

		assert.Eventually(t, func() bool {
			records, err := m.Records()
			if err != nil {
				return false
			}
			return len(records) == 1 && records[0].Count == 3
		}, time.Second*5, time.Millisecond*5)
	})
}

func TestManager_CommitFailure(t *testing.T) {
	t.Run("buffer restored", func(t *testing.T) {
		clock := newFakeClock()

		var mu sync.Mutex
		fail := true
		var committed []string
		committer := CommitterFunc(func(_ context.Context, rootHex string) (string, error) {
			mu.Lock()
			defer mu.Unlock()

			if fail {
				return "", errors.New("unavailable")
			}
			committed = append(committed, rootHex)
			return "tx-" + rootHex[:8], nil
		})

		m := NewManager(
			testConfig(100, time.Second),
			WithCommitter(committer),
			WithClock(clock.Now),
		)

		packets := testPackets(4)
		for _, b := range packets[:3] {
			_, err := m.AddPacket(context.Background(), b)
			require.NoError(t, err)
		}

		clock.Advance(time.Second)
		rec, err := m.Tick(context.Background())
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.Nil(t, rec)
		assert.Equal(t, 3, m.Buffered())
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Metrics().CommitFailures))

		// Packets added after the failure are appended after the restored
		// batch.
		_, err = m.AddPacket(context.Background(), packets[3])
		require.NoError(t, err)

		mu.Lock()
		fail = false
		mu.Unlock()

		rec, err = m.Tick(context.Background())
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 4, rec.Count)

		tree, err := merkle.New(packets)
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(tree.Root()), rec.Root)
		assert.Equal(t, []string{rec.Root}, committed)
	})

	t.Run("batch size failure", func(t *testing.T) {
		committer := CommitterFunc(func(_ context.Context, _ string) (string, error) {
			return "", errors.New("unavailable")
		})
		m := NewManager(testConfig(2, time.Hour), WithCommitter(committer))

		packets := testPackets(2)
		_, err := m.AddPacket(context.Background(), packets[0])
		require.NoError(t, err)
		_, err = m.AddPacket(context.Background(), packets[1])
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.Equal(t, 2, m.Buffered())
	})

	t.Run("retried on tick", func(t *testing.T) {
		var mu sync.Mutex
		fail := true
		attempts := 0
		committer := CommitterFunc(func(_ context.Context, rootHex string) (string, error) {
			mu.Lock()
			defer mu.Unlock()

			attempts++
			if fail {
				return "", errors.New("unavailable")
			}
			return "tx-" + rootHex[:8], nil
		})
		commitAttempts := func() int {
			mu.Lock()
			defer mu.Unlock()
			return attempts
		}

		m := NewManager(testConfig(4, time.Hour), WithCommitter(committer))

		packets := testPackets(14)
		for i, b := range packets[:10] {
			_, err := m.AddPacket(context.Background(), b)
			if i == 3 {
				assert.ErrorIs(t, err, ErrCommitFailed)
			} else {
				require.NoError(t, err)
			}
		}
		// Only the first full batch is attempted until the next tick.
		assert.Equal(t, 1, commitAttempts())
		assert.Equal(t, 10, m.Buffered())

		// The tick retries even though the interval hasn't elapsed.
		_, err := m.Tick(context.Background())
		assert.ErrorIs(t, err, ErrCommitFailed)
		assert.Equal(t, 2, commitAttempts())
		assert.Equal(t, 10, m.Buffered())

		mu.Lock()
		fail = false
		mu.Unlock()

		rec, err := m.Tick(context.Background())
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 10, rec.Count)
		assert.Equal(t, 3, commitAttempts())

		// Once recovered, reaching the batch size anchors again.
		for _, b := range packets[10:13] {
			rec, err = m.AddPacket(context.Background(), b)
			require.NoError(t, err)
			assert.Nil(t, rec)
		}
		rec, err = m.AddPacket(context.Background(), packets[13])
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 4, rec.Count)
		assert.Equal(t, 4, commitAttempts())
	})
}

func TestManager_Enqueue(t *testing.T) {
	t.Run("batch size", func(t *testing.T) {
		ledger := NewMemoryLedger()
		m := NewManager(testConfig(2, time.Hour), WithLedger(ledger))
		m.Start()
		defer m.Stop()

		for _, b := range testPackets(2) {
			m.Enqueue(b)
		}

		assert.Eventually(t, func() bool {
			records, err := ledger.List()
			return err == nil && len(records) == 1
		}, time.Second*5, time.Millisecond*5)
		assert.Equal(t, 0, m.Buffered())
	})

	t.Run("slow commit", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		committer := CommitterFunc(func(_ context.Context, rootHex string) (string, error) {
			once.Do(func() {
				close(started)
				<-release
			})
			return "tx-" + rootHex, nil
		})

		ledger := NewMemoryLedger()
		conf := testConfig(2, time.Hour)
		conf.TickInterval = time.Hour
		m := NewManager(conf, WithCommitter(committer), WithLedger(ledger))
		m.Start()
		defer m.Stop()

		packets := testPackets(7)
		m.Enqueue(packets[0])
		m.Enqueue(packets[1])
		<-started

		// Enqueue doesn't wait for the blocked commit.
		for _, b := range packets[2:] {
			m.Enqueue(b)
		}
		assert.Equal(t, 5, m.Buffered())

		close(release)

		assert.Eventually(t, func() bool {
			records, err := ledger.List()
			if err != nil {
				return false
			}
			count := 0
			for _, rec := range records {
				count += rec.Count
			}
			return count == 7
		}, time.Second*5, time.Millisecond*5)
		assert.Equal(t, 0, m.Buffered())
	})
}

func TestManager_SlowCommit(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	committer := CommitterFunc(func(_ context.Context, rootHex string) (string, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		if first {
			close(started)
			<-release
		}
		return "tx-" + rootHex, nil
	})

	m := NewManager(testConfig(2, time.Hour), WithCommitter(committer))

	packets := testPackets(4)
	_, err := m.AddPacket(context.Background(), packets[0])
	require.NoError(t, err)

	recCh := make(chan *Record)
	go func() {
		rec, err := m.AddPacket(context.Background(), packets[1])
		assert.NoError(t, err)
		recCh <- rec
	}()

	<-started

	// Adding a packet while the commit is in progress doesn't block.
	rec, err := m.AddPacket(context.Background(), packets[2])
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, m.Buffered())

	close(release)

	rec = <-recCh
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Count)

	rec, err = m.AddPacket(context.Background(), packets[3])
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Count)

	tree, err := merkle.New(packets[2:])
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(tree.Root()), rec.Root)
}

func TestManager_Flush(t *testing.T) {
	m := NewManager(testConfig(100, time.Hour))

	rec, err := m.Flush(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)

	for _, b := range testPackets(5) {
		_, err := m.AddPacket(context.Background(), b)
		require.NoError(t, err)
	}

	rec, err = m.Flush(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Count)
	assert.Equal(t, 0, m.Buffered())
}

func TestManager_Proof(t *testing.T) {
	m := NewManager(testConfig(7, time.Hour))

	packets := testPackets(7)
	var rec *Record
	for _, b := range packets {
		var err error
		rec, err = m.AddPacket(context.Background(), b)
		require.NoError(t, err)
	}
	require.NotNil(t, rec)

	root, err := hex.DecodeString(rec.Root)
	require.NoError(t, err)

	for i, b := range packets {
		proof, leaf, err := m.Proof(rec.ExternalID, i)
		require.NoError(t, err)
		assert.Equal(t, b, leaf)
		assert.True(t, merkle.VerifyProof(leaf, proof, root))
	}

	t.Run("index out of range", func(t *testing.T) {
		_, _, err := m.Proof(rec.ExternalID, 7)
		assert.ErrorIs(t, err, merkle.ErrIndexOutOfRange)
	})

	t.Run("not found", func(t *testing.T) {
		_, _, err := m.Proof("unknown", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
