package anchor

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/nanoledger/pkg/merkle"
	"github.com/andydunstall/nanoledger/pkg/status"
)

// ProofInfo is the status API representation of an inclusion proof.
type ProofInfo struct {
	ExternalID string `json:"external_id" yaml:"external_id"`
	Index      int    `json:"index" yaml:"index"`
	Root       string `json:"root" yaml:"root"`
	// Leaf is the hex encoded packet.
	Leaf  string            `json:"leaf" yaml:"leaf"`
	Proof []merkle.HexEntry `json:"proof" yaml:"proof"`
}

type Status struct {
	manager *Manager
}

func NewStatus(manager *Manager) *Status {
	return &Status{
		manager: manager,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/records", s.listRecordsRoute)
	group.GET("/records/:id", s.getRecordRoute)
	group.GET("/records/:id/proof/:index", s.getProofRoute)
}

func (s *Status) listRecordsRoute(c *gin.Context) {
	records, err := s.manager.Records()
	if err != nil {
		status.WriteError(c, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (s *Status) getRecordRoute(c *gin.Context) {
	rec, err := s.manager.Record(c.Param("id"))
	if err != nil {
		status.WriteError(c, recordError(err))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Status) getProofRoute(c *gin.Context) {
	id := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		status.WriteError(c, status.NewErrorInfo(http.StatusBadRequest, "invalid index"))
		return
	}

	proof, leaf, err := s.manager.Proof(id, index)
	if err != nil {
		status.WriteError(c, recordError(err))
		return
	}
	rec, err := s.manager.Record(id)
	if err != nil {
		status.WriteError(c, recordError(err))
		return
	}

	c.JSON(http.StatusOK, ProofInfo{
		ExternalID: id,
		Index:      index,
		Root:       rec.Root,
		Leaf:       hex.EncodeToString(leaf),
		Proof:      proof.Hex(),
	})
}

func recordError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return status.NewErrorInfo(http.StatusNotFound, "record not found")
	}
	if errors.Is(err, merkle.ErrIndexOutOfRange) {
		return status.NewErrorInfo(http.StatusBadRequest, "index out of range")
	}
	return err
}

var _ status.Handler = &Status{}
