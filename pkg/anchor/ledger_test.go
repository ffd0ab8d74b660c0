package anchor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(t *testing.T, ledger Ledger) {
	t.Helper()

	ts := time.Unix(1700000000, 0).UTC()
	rec1 := Record{
		ExternalID: "tx-2",
		Root:       "aa",
		Timestamp:  ts,
		Count:      2,
	}
	leaves1 := [][]byte{[]byte("foo"), []byte("bar")}
	rec2 := Record{
		ExternalID: "tx-1",
		Root:       "bb",
		Timestamp:  ts.Add(time.Second),
		Count:      1,
	}
	leaves2 := [][]byte{[]byte("baz")}

	t.Run("empty", func(t *testing.T) {
		records, err := ledger.List()
		require.NoError(t, err)
		assert.Empty(t, records)

		_, err = ledger.Get("tx-1")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = ledger.Leaves("tx-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put", func(t *testing.T) {
		require.NoError(t, ledger.Put(rec1, leaves1))
		require.NoError(t, ledger.Put(rec2, leaves2))

		rec, err := ledger.Get("tx-2")
		require.NoError(t, err)
		assert.Equal(t, rec1, rec)

		leaves, err := ledger.Leaves("tx-2")
		require.NoError(t, err)
		assert.Equal(t, leaves1, leaves)

		// Ordered by timestamp.
		records, err := ledger.List()
		require.NoError(t, err)
		assert.Equal(t, []Record{rec1, rec2}, records)
	})

	t.Run("append only", func(t *testing.T) {
		err := ledger.Put(Record{
			ExternalID: "tx-2",
			Root:       "cc",
			Timestamp:  ts,
			Count:      1,
		}, [][]byte{[]byte("other")})
		assert.ErrorIs(t, err, ErrRecordExists)

		rec, err := ledger.Get("tx-2")
		require.NoError(t, err)
		assert.Equal(t, rec1, rec)

		leaves, err := ledger.Leaves("tx-2")
		require.NoError(t, err)
		assert.Equal(t, leaves1, leaves)
	})
}

func TestMemoryLedger(t *testing.T) {
	testLedger(t, NewMemoryLedger())
}

func TestPebbleLedger(t *testing.T) {
	t.Run("ledger", func(t *testing.T) {
		ledger, err := OpenPebbleLedger(t.TempDir())
		require.NoError(t, err)
		defer ledger.Close()

		testLedger(t, ledger)
	})

	t.Run("reopen", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "ledger")

		rec := Record{
			ExternalID: "tx-1",
			Root:       "aa",
			Timestamp:  time.Unix(1700000000, 0).UTC(),
			Count:      3,
		}
		leaves := [][]byte{[]byte("foo"), []byte("bar"), []byte("baz")}

		ledger, err := OpenPebbleLedger(dir)
		require.NoError(t, err)
		require.NoError(t, ledger.Put(rec, leaves))
		require.NoError(t, ledger.Close())

		ledger, err = OpenPebbleLedger(dir)
		require.NoError(t, err)
		defer ledger.Close()

		records, err := ledger.List()
		require.NoError(t, err)
		assert.Equal(t, []Record{rec}, records)

		stored, err := ledger.Leaves("tx-1")
		require.NoError(t, err)
		assert.Equal(t, leaves, stored)

		assert.ErrorIs(t, ledger.Put(rec, leaves), ErrRecordExists)
	})
}
