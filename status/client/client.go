// Package client queries a nodes status API.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"strconv"
	"time"

	"github.com/andydunstall/nanoledger/pkg/anchor"
	"github.com/andydunstall/nanoledger/pkg/gossip"
	"github.com/andydunstall/nanoledger/pkg/status"
)

type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		url: url,
	}
}

func (c *Client) GossipTip() (*gossip.TipInfo, error) {
	var tip gossip.TipInfo
	if err := c.get("/status/gossip/tip", &tip); err != nil {
		return nil, err
	}
	return &tip, nil
}

func (c *Client) GossipPackets() ([]gossip.PacketInfo, error) {
	var packets []gossip.PacketInfo
	if err := c.get("/status/gossip/packets", &packets); err != nil {
		return nil, err
	}
	return packets, nil
}

func (c *Client) GossipPacket(hash string) (*gossip.PacketInfo, error) {
	var p gossip.PacketInfo
	if err := c.get("/status/gossip/packets/"+hash, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) AnchorRecords() ([]anchor.Record, error) {
	var records []anchor.Record
	if err := c.get("/status/anchor/records", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) AnchorRecord(id string) (*anchor.Record, error) {
	var rec anchor.Record
	if err := c.get("/status/anchor/records/"+id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) AnchorProof(id string, index int) (*anchor.ProofInfo, error) {
	var proof anchor.ProofInfo
	path := "/status/anchor/records/" + id + "/proof/" + strconv.Itoa(index)
	if err := c.get(path, &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) get(path string, v any) error {
	r, err := c.request(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) request(path string) (io.ReadCloser, error) {
	url := new(url.URL)
	*url = *c.url

	url.Path = fspath.Join(url.Path, path)

	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		// Return the error message from the node if there is one.
		var errorInfo status.ErrorInfo
		if err := json.NewDecoder(resp.Body).Decode(&errorInfo); err == nil && errorInfo.Message != "" {
			errorInfo.StatusCode = resp.StatusCode
			return nil, fmt.Errorf("request: %w", &errorInfo)
		}
		return nil, fmt.Errorf("request: bad status: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
