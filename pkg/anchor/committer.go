package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/nanoledger/pkg/log"
)

// Committer commits a Merkle root to an external anchoring service.
type Committer interface {
	// Commit commits the hex encoded root and returns the external ID of
	// the commitment.
	Commit(ctx context.Context, rootHex string) (string, error)
}

// CommitterFunc adapts a function to a Committer.
type CommitterFunc func(ctx context.Context, rootHex string) (string, error)

func (f CommitterFunc) Commit(ctx context.Context, rootHex string) (string, error) {
	return f(ctx, rootHex)
}

// localNamespace is the UUID namespace for local placeholder IDs.
var localNamespace = uuid.MustParse("6f1c5b0e-3a47-4d2b-9c1e-8a4f2d7e5b13")

// LocalCommitter doesn't anchor anything externally. It returns a
// deterministic placeholder ID derived from the root and the commit
// sequence number, prefixed with 'local-'.
type LocalCommitter struct {
	sequence *atomic.Uint64
	logger   log.Logger
}

// NewLocalCommitter returns a committer whose first commit has the given
// sequence number.
func NewLocalCommitter(sequence uint64, logger log.Logger) *LocalCommitter {
	return &LocalCommitter{
		sequence: atomic.NewUint64(sequence),
		logger:   logger.WithSubsystem("anchor"),
	}
}

func (c *LocalCommitter) Commit(_ context.Context, rootHex string) (string, error) {
	seq := c.sequence.Inc() - 1
	id := "local-" + uuid.NewSHA1(
		localNamespace, []byte(rootHex+"/"+strconv.FormatUint(seq, 10)),
	).String()

	c.logger.Warn(
		"root not anchored externally; using local placeholder id",
		zap.String("root", rootHex),
		zap.String("id", id),
	)
	return id, nil
}

type commitRequest struct {
	Root string `json:"root"`
}

type commitResponse struct {
	ID string `json:"id"`
}

// HTTPCommitter commits roots to an HTTP anchoring service.
type HTTPCommitter struct {
	url        string
	httpClient *http.Client
}

func NewHTTPCommitter(url string, httpClient *http.Client) *HTTPCommitter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPCommitter{
		url:        url,
		httpClient: httpClient,
	}
}

func (c *HTTPCommitter) Commit(ctx context.Context, rootHex string) (string, error) {
	body, err := json.Marshal(commitRequest{Root: rootHex})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.url, bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("request: bad status: %d: %s", resp.StatusCode, b)
	}

	var commitResp commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&commitResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if commitResp.ID == "" {
		return "", fmt.Errorf("response missing id")
	}
	return commitResp.ID, nil
}

var _ Committer = &LocalCommitter{}
var _ Committer = &HTTPCommitter{}
var _ Committer = CommitterFunc(nil)
