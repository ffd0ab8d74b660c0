// Package node runs a nanoledger node.
//
// A node receives packets from senders on the ingest listener, replicates
// them with its peers using gossip, and anchors batches of packets. Packets
// learned from peers are anchored the same as locally received packets.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/nanoledger/node/admin"
	"github.com/andydunstall/nanoledger/node/config"
	"github.com/andydunstall/nanoledger/node/ingest"
	"github.com/andydunstall/nanoledger/pkg/anchor"
	"github.com/andydunstall/nanoledger/pkg/gossip"
	"github.com/andydunstall/nanoledger/pkg/log"
	"github.com/andydunstall/nanoledger/pkg/packet"
)

type Node struct {
	conf *config.Config

	gossip *gossip.Node
	ingest *ingest.Listener
	anchor *anchor.Manager
	ledger anchor.Ledger

	adminServer *admin.Server
	adminLn     net.Listener

	registry *prometheus.Registry

	ingestDone chan struct{}

	logger log.Logger
}

func New(conf *config.Config, logger log.Logger) (*Node, error) {
	if conf.Node.ID == "" {
		return nil, fmt.Errorf("missing node id")
	}

	identity, err := LoadIdentity(conf.Node.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	var ledger anchor.Ledger
	if conf.Anchor.DataDir != "" {
		ledger, err = anchor.OpenPebbleLedger(conf.Anchor.DataDir)
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
	} else {
		ledger = anchor.NewMemoryLedger()
	}

	committer, err := newCommitter(conf, ledger, logger)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	gossipConn, err := net.ListenPacket("udp", conf.Gossip.BindAddr)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("gossip listen: %s: %w", conf.Gossip.BindAddr, err)
	}
	ingestConn, err := net.ListenPacket("udp", conf.Ingest.BindAddr)
	if err != nil {
		gossipConn.Close()
		ledger.Close()
		return nil, fmt.Errorf("ingest listen: %s: %w", conf.Ingest.BindAddr, err)
	}
	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		ingestConn.Close()
		gossipConn.Close()
		ledger.Close()
		return nil, fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}

	registry := prometheus.NewRegistry()

	n := &Node{
		conf:       conf,
		ledger:     ledger,
		adminLn:    adminLn,
		registry:   registry,
		ingestDone: make(chan struct{}),
		logger:     logger.WithSubsystem("node"),
	}

	n.gossip = gossip.New(
		conf.Node.ID,
		&conf.Gossip,
		identity,
		gossip.NewUDPTransport(gossipConn, conf.Gossip.MaxPacketSize, logger),
		gossip.WithWatcher(&gossipWatcher{node: n}),
		gossip.WithLogger(logger),
	)
	n.gossip.Metrics().Register(registry)

	n.ingest = ingest.NewListener(ingestConn, &conf.Ingest, n, logger)
	n.ingest.Metrics().Register(registry)

	n.anchor = anchor.NewManager(
		&conf.Anchor,
		anchor.WithCommitter(committer),
		anchor.WithLedger(ledger),
		anchor.WithLogger(logger),
	)
	n.anchor.Metrics().Register(registry)

	n.adminServer = admin.NewServer(registry, logger)
	n.adminServer.AddStatus("/gossip", gossip.NewStatus(n.gossip))
	n.adminServer.AddStatus("/anchor", anchor.NewStatus(n.anchor))

	return n, nil
}

func (n *Node) Gossip() *gossip.Node {
	return n.gossip
}

func (n *Node) Anchor() *anchor.Manager {
	return n.anchor
}

func (n *Node) GossipAddr() string {
	return n.gossip.Addr()
}

func (n *Node) IngestAddr() string {
	return n.ingest.Addr()
}

func (n *Node) AdminAddr() string {
	return n.adminLn.Addr().String()
}

// Ingest adds a packet received from a sender as the local chain tip and
// buffers it to be anchored.
func (n *Node) Ingest(p packet.Packet) error {
	if err := n.gossip.AddPacket(p); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	n.addToAnchor(p)
	return nil
}

// Run runs the node until the context is cancelled, then gracefully shuts
// down.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info(
		"starting node",
		zap.String("node-id", n.conf.Node.ID),
		zap.Any("conf", n.conf),
	)

	if err := n.gossip.Start(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	n.anchor.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(n.ingestDone)
		if err := n.ingest.Serve(); err != nil {
			return fmt.Errorf("ingest serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := n.adminServer.Serve(n.adminLn); err != nil {
			return fmt.Errorf("admin serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		n.shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	n.logger.Info("shutdown complete")
	return nil
}

func (n *Node) shutdown() {
	n.logger.Info("shutting down node")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		n.conf.GracePeriod,
	)
	defer cancel()

	// Ingest adds packets to gossip so must be closed first.
	if err := n.ingest.Close(); err != nil {
		n.logger.Warn("failed to close ingest listener", zap.Error(err))
	}
	<-n.ingestDone

	if err := n.gossip.Stop(); err != nil {
		n.logger.Warn("failed to stop gossip", zap.Error(err))
	}

	if err := n.adminServer.Shutdown(shutdownCtx); err != nil {
		n.logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
	}

	// Gossip and ingest are stopped so nothing else is buffered.
	n.anchor.Stop()

	if rec, err := n.anchor.Flush(shutdownCtx); err != nil {
		n.logger.Warn(
			"failed to anchor buffered packets",
			zap.Int("buffered", n.anchor.Buffered()),
			zap.Error(err),
		)
	} else if rec != nil {
		n.logger.Info(
			"anchored buffered packets",
			zap.String("external-id", rec.ExternalID),
			zap.Int("count", rec.Count),
		)
	}

	if err := n.ledger.Close(); err != nil {
		n.logger.Warn("failed to close ledger", zap.Error(err))
	}
}

// addToAnchor buffers the packet. Full batches are committed by the anchor
// tick loop, so ingest and gossip never wait on the committer.
func (n *Node) addToAnchor(p packet.Packet) {
	n.anchor.Enqueue(p.Bytes())
}

func newCommitter(
	conf *config.Config,
	ledger anchor.Ledger,
	logger log.Logger,
) (anchor.Committer, error) {
	if conf.Anchor.CommitURL != "" {
		return anchor.NewHTTPCommitter(
			conf.Anchor.CommitURL,
			&http.Client{Timeout: conf.Anchor.CommitTimeout},
		), nil
	}

	// Continue the local sequence from the persisted records so placeholder
	// IDs aren't reused after a restart.
	records, err := ledger.List()
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return anchor.NewLocalCommitter(uint64(len(records)), logger), nil
}

// gossipWatcher buffers packets learned from peers to be anchored.
type gossipWatcher struct {
	node *Node
}

func (w *gossipWatcher) OnPacket(p packet.Packet) {
	w.node.addToAnchor(p)
}

var _ gossip.Watcher = &gossipWatcher{}
var _ ingest.Sink = &Node{}
