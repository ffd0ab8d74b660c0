package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedup(t *testing.T) {
	t.Run("duplicate within ttl", func(t *testing.T) {
		d := newDedup(time.Second)
		now := time.Now()

		assert.True(t, d.Check([]byte("foo"), now))
		assert.False(t, d.Check([]byte("foo"), now.Add(time.Millisecond*500)))
		assert.True(t, d.Check([]byte("bar"), now))
	})

	t.Run("duplicate after ttl", func(t *testing.T) {
		d := newDedup(time.Second)
		now := time.Now()

		assert.True(t, d.Check([]byte("foo"), now))
		assert.True(t, d.Check([]byte("foo"), now.Add(time.Second)))
	})

	t.Run("disabled", func(t *testing.T) {
		d := newDedup(0)
		now := time.Now()

		assert.True(t, d.Check([]byte("foo"), now))
		assert.True(t, d.Check([]byte("foo"), now))
		assert.Equal(t, 0, d.Len())
	})

	t.Run("expire", func(t *testing.T) {
		d := newDedup(time.Second)
		now := time.Now()

		d.Check([]byte("foo"), now)
		d.Check([]byte("bar"), now.Add(time.Millisecond*800))
		assert.Equal(t, 2, d.Len())

		d.Expire(now.Add(time.Second))
		assert.Equal(t, 1, d.Len())
	})
}
