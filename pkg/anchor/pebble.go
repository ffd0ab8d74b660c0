package anchor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/ugorji/go/codec"
)

var (
	recordPrefix = []byte("record/")
	leavesPrefix = []byte("leaves/")
)

// PebbleLedger is a Ledger persisted to a Pebble database.
//
// Each record is stored as JSON under 'record/<external id>', and the batch
// leaves as zstd compressed msgpack under 'leaves/<external id>'.
type PebbleLedger struct {
	db *pebble.DB

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// putMu serialises puts so the existence check and write are atomic.
	putMu sync.Mutex
}

func OpenPebbleLedger(path string) (*PebbleLedger, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Cache:        pebble.NewCache(8 << 20),
		MemTableSize: 4 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &PebbleLedger{
		db:      db,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (l *PebbleLedger) Put(rec Record, leaves [][]byte) error {
	recordValue, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var leavesValue []byte
	enc := codec.NewEncoderBytes(&leavesValue, &codec.MsgpackHandle{})
	if err := enc.Encode(leaves); err != nil {
		return fmt.Errorf("encode leaves: %w", err)
	}
	leavesValue = l.encoder.EncodeAll(leavesValue, nil)

	l.putMu.Lock()
	defer l.putMu.Unlock()

	if _, err := l.get(recordKey(rec.ExternalID)); err == nil {
		return ErrRecordExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(recordKey(rec.ExternalID), recordValue, nil); err != nil {
		return fmt.Errorf("set record: %w", err)
	}
	if err := batch.Set(leavesKey(rec.ExternalID), leavesValue, nil); err != nil {
		return fmt.Errorf("set leaves: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *PebbleLedger) Get(id string) (Record, error) {
	b, err := l.get(recordKey(id))
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (l *PebbleLedger) Leaves(id string) ([][]byte, error) {
	b, err := l.get(leavesKey(id))
	if err != nil {
		return nil, err
	}

	b, err = l.decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress leaves: %w", err)
	}

	var leaves [][]byte
	dec := codec.NewDecoderBytes(b, &codec.MsgpackHandle{})
	if err := dec.Decode(&leaves); err != nil {
		return nil, fmt.Errorf("decode leaves: %w", err)
	}
	return leaves, nil
}

func (l *PebbleLedger) List() ([]Record, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: recordPrefix,
		UpperBound: prefixUpperBound(recordPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iter: %w", err)
	}
	defer iter.Close()

	var records []Record
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("iter: %w", err)
		}

		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil, fmt.Errorf("decode record: %s: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iter: %w", err)
	}

	sortRecords(records)
	return records, nil
}

func (l *PebbleLedger) Close() error {
	l.decoder.Close()
	if err := l.encoder.Close(); err != nil {
		return err
	}
	return l.db.Close()
}

func (l *PebbleLedger) get(key []byte) ([]byte, error) {
	value, closer, err := l.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close().
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func recordKey(id string) []byte {
	return append(append([]byte(nil), recordPrefix...), id...)
}

func leavesKey(id string) []byte {
	return append(append([]byte(nil), leavesPrefix...), id...)
}

// prefixUpperBound returns the exclusive upper bound for a prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}
	return nil
}

var _ Ledger = &PebbleLedger{}
