package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/nanoledger/pkg/status"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := NewClient(u)
	t.Cleanup(client.Close)
	return client
}

func TestClient_Gossip(t *testing.T) {
	t.Run("tip", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/status/gossip/tip", r.URL.Path)
			w.Write([]byte(`{"node_id":"node-1","hash":"0001020304050607","packets":3}`))
		})

		tip, err := client.GossipTip()
		require.NoError(t, err)
		assert.Equal(t, "node-1", tip.NodeID)
		assert.Equal(t, "0001020304050607", tip.Hash)
		assert.Equal(t, 3, tip.Packets)
	})

	t.Run("packets", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/status/gossip/packets", r.URL.Path)
			w.Write([]byte(`[{"hash":"0001020304050607","prev_hash":"0000000000000000","critical":true,"payload":"Zm9v"}]`))
		})

		packets, err := client.GossipPackets()
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.True(t, packets[0].Critical)
		assert.Equal(t, []byte("foo"), packets[0].Payload)
	})

	t.Run("packet not found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/status/gossip/packets/0001020304050607", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"packet not found"}`))
		})

		_, err := client.GossipPacket("0001020304050607")
		var errorInfo *status.ErrorInfo
		require.True(t, errors.As(err, &errorInfo))
		assert.Equal(t, http.StatusNotFound, errorInfo.StatusCode)
		assert.Equal(t, "packet not found", errorInfo.Message)
	})
}

func TestClient_Anchor(t *testing.T) {
	t.Run("records", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/status/anchor/records", r.URL.Path)
			w.Write([]byte(`[{"external_id":"local-1","root":"ab","timestamp":"2024-01-01T00:00:00Z","count":2}]`))
		})

		records, err := client.AnchorRecords()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "local-1", records[0].ExternalID)
		assert.Equal(t, 2, records[0].Count)
	})

	t.Run("record", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/status/anchor/records/local-1", r.URL.Path)
			w.Write([]byte(`{"external_id":"local-1","root":"ab","timestamp":"2024-01-01T00:00:00Z","count":2}`))
		})

		rec, err := client.AnchorRecord("local-1")
		require.NoError(t, err)
		assert.Equal(t, "ab", rec.Root)
	})

	t.Run("proof", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/status/anchor/records/local-1/proof/1", r.URL.Path)
			w.Write([]byte(`{"external_id":"local-1","index":1,"root":"ab","leaf":"cd","proof":[{"position":"left","hash":"ef"}]}`))
		})

		proof, err := client.AnchorProof("local-1", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, proof.Index)
		assert.Equal(t, "cd", proof.Leaf)
		require.Len(t, proof.Proof, 1)
		assert.Equal(t, "ef", proof.Proof[0].Hash)
	})

	t.Run("bad status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.AnchorRecords()
		assert.EqualError(t, err, "request: bad status: 502")
	})
}
