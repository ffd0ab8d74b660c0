package anchor

import (
	"errors"
	"time"
)

var (
	ErrCommitFailed = errors.New("commit failed")
	ErrRecordExists = errors.New("record exists")
	ErrNotFound     = errors.New("not found")
)

// Record is a committed batch.
type Record struct {
	// ExternalID is the identifier returned by the anchoring service.
	ExternalID string `json:"external_id" yaml:"external_id"`

	// Root is the hex encoded Merkle root of the batch.
	Root string `json:"root" yaml:"root"`

	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Count is the number of packets in the batch.
	Count int `json:"count" yaml:"count"`
}
