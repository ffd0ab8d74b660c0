//go:build integration

package gossip

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/nanoledger/pkg/log"
	"github.com/andydunstall/nanoledger/pkg/packet"
)

func udpNode(t *testing.T, id string, conf *Config) *Node {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	transport := NewUDPTransport(conn, conf.MaxPacketSize, log.NewNopLogger())
	return New(id, conf, testKey(t), transport)
}

func TestNode_UDP(t *testing.T) {
	t.Run("replicate chain", func(t *testing.T) {
		confA := DefaultConfig()
		confA.Interval = time.Millisecond * 50
		nodeA := udpNode(t, "node-a", confA)

		confB := DefaultConfig()
		confB.Interval = time.Millisecond * 50
		nodeB := udpNode(t, "node-b", confB)

		confA.Peers = []string{nodeB.Addr()}
		confB.Peers = []string{nodeA.Addr()}

		require.NoError(t, nodeA.Start())
		defer nodeA.Stop()
		require.NoError(t, nodeB.Start())
		defer nodeB.Stop()

		chain := packet.NewChain(packet.ZeroHash)
		var packets []packet.Packet
		for _, payload := range []string{"p1", "p2", "p3"} {
			p := chain.Next(false, []byte(payload))
			packets = append(packets, p)
			require.NoError(t, nodeA.AddPacket(p))
		}

		assert.Eventually(t, func() bool {
			return nodeB.Tip() == packets[2].Hash
		}, time.Second*5, time.Millisecond*10)
		for _, p := range packets {
			assert.True(t, nodeB.Has(p.Key()))
		}
	})

	t.Run("oversized datagram", func(t *testing.T) {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)

		transport := NewUDPTransport(conn, 16, log.NewNopLogger())
		defer transport.Close()

		assert.Error(t, transport.Send(make([]byte, 17), transport.Addr()))
	})
}
