package gossip

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/nanoledger/pkg/packet"
	"github.com/andydunstall/nanoledger/pkg/status"
)

// PacketInfo is the status API representation of a packet.
type PacketInfo struct {
	Hash     string `json:"hash" yaml:"hash"`
	PrevHash string `json:"prev_hash" yaml:"prev_hash"`
	Critical bool   `json:"critical" yaml:"critical"`
	Payload  []byte `json:"payload" yaml:"payload"`
}

func NewPacketInfo(p packet.Packet) PacketInfo {
	return PacketInfo{
		Hash:     p.Hash.String(),
		PrevHash: p.PrevHash.String(),
		Critical: p.Critical,
		Payload:  p.Payload,
	}
}

// TipInfo is the status API representation of the local chain tip.
type TipInfo struct {
	NodeID  string `json:"node_id" yaml:"node_id"`
	Hash    string `json:"hash" yaml:"hash"`
	Packets int    `json:"packets" yaml:"packets"`
}

type Status struct {
	node *Node
}

func NewStatus(node *Node) *Status {
	return &Status{
		node: node,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/tip", s.tipRoute)
	group.GET("/packets", s.listPacketsRoute)
	group.GET("/packets/:hash", s.getPacketRoute)
}

func (s *Status) tipRoute(c *gin.Context) {
	s.node.mu.Lock()
	info := TipInfo{
		NodeID:  s.node.id,
		Hash:    s.node.tip.String(),
		Packets: s.node.store.Len(),
	}
	s.node.mu.Unlock()

	c.JSON(http.StatusOK, info)
}

func (s *Status) listPacketsRoute(c *gin.Context) {
	// Return an empty list rather than null when there are no packets.
	packets := []PacketInfo{}
	for _, p := range s.node.Packets() {
		packets = append(packets, NewPacketInfo(p))
	}
	c.JSON(http.StatusOK, packets)
}

func (s *Status) getPacketRoute(c *gin.Context) {
	hash, err := packet.ParseHash(c.Param("hash"))
	if err != nil {
		status.WriteError(c, status.NewErrorInfo(http.StatusBadRequest, "invalid hash"))
		return
	}
	p, ok := s.node.Get(hash.String())
	if !ok {
		status.WriteError(c, status.NewErrorInfo(http.StatusNotFound, "packet not found"))
		return
	}
	c.JSON(http.StatusOK, NewPacketInfo(p))
}

var _ status.Handler = &Status{}
