// Package meshnode wires the reliable transport, the CRDT store, and the
// peer manager together and drives the three periodic loops (sync,
// heartbeat, discovery) that make a mesh of nodes converge. It is the Go
// counterpart of original_source/mesh_node.py's MeshSyncNode, restructured
// around goroutines in the teacher's graceful-shutdown idiom
// (cmd/server/main.go's stop-channel + WaitGroup-join pattern).
package meshnode

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"meshkv/internal/crdt"
	"meshkv/internal/peers"
	"meshkv/internal/transport"
)

const (
	// DefaultSyncInterval matches spec.md §6's new() default.
	DefaultSyncInterval = 10 * time.Second
	// DefaultHeartbeatInterval matches spec.md §6's new() default.
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultPeerTimeout matches spec.md §4.3's default.
	DefaultPeerTimeout = 15 * time.Second
	// discoveryInitialDelay and discoveryInterval match spec.md §4.4.
	discoveryInitialDelay = 1 * time.Second
	discoveryInterval     = 30 * time.Second
)

// Options configures a Node beyond its required node id and port.
type Options struct {
	SyncInterval      time.Duration
	HeartbeatInterval time.Duration
	PeerTimeout       time.Duration
	Logger            *log.Logger
	OnStateChange     crdt.OnChange

	// Socket, if set, is used instead of binding a fresh transport.Socket
	// on port. This is the seam loadgen and convergence tests use to run
	// nodes over a transport.LossyConn-backed socket.
	Socket *transport.Socket
}

// Node is one replica in the mesh: it owns a CRDT store, a peer table, and
// a reliable transport socket, and keeps all three converging with its
// peers via the three background loops described in spec.md §4.4.
type Node struct {
	nodeID string
	port   int

	syncInterval      time.Duration
	heartbeatInterval time.Duration

	logger *log.Logger

	store  *crdt.Store
	peerMgr *peers.Manager
	sock   *transport.Socket

	syncGroup singleflight.Group

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Node bound to port, identified by nodeID. Unless
// opts.Socket is set, the UDP socket is bound here; nothing is received and
// no loop runs until Start is called.
func New(nodeID string, port int, opts Options) (*Node, error) {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = DefaultPeerTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	sock := opts.Socket
	if sock == nil {
		var err error
		sock, err = transport.New(port, nodeID, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("meshnode: %w", err)
		}
	}

	n := &Node{
		nodeID:            nodeID,
		port:              port,
		syncInterval:      opts.SyncInterval,
		heartbeatInterval: opts.HeartbeatInterval,
		logger:            opts.Logger,
		store:             crdt.New(nodeID, opts.OnStateChange),
		peerMgr:           peers.NewManager(nodeID, opts.HeartbeatInterval, opts.PeerTimeout),
		sock:              sock,
		stopCh:            make(chan struct{}),
	}

	n.registerHandlers()
	return n, nil
}

// NodeID returns this node's identifier.
func (n *Node) NodeID() string { return n.nodeID }

// Port returns this node's bound UDP port.
func (n *Node) Port() int { return n.port }

// Logger returns the node's own logger, so collaborators like
// internal/httpapi can log through the same stream as the mesh's own
// gossip activity instead of the bare package-level log.
func (n *Node) Logger() *log.Logger { return n.logger }

// AddBootstrapPeer registers a seed address used by the discovery loop.
func (n *Node) AddBootstrapPeer(host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("meshnode: resolve bootstrap peer %s:%d: %w", host, port, err)
	}
	n.peerMgr.AddBootstrapPeer(addr)
	return nil
}

// Start launches the transport, the peer manager's health-check loop, and
// the sync/heartbeat/discovery loops.
func (n *Node) Start() {
	n.sock.Start()
	n.peerMgr.Start()

	n.wg.Add(3)
	go n.syncLoop()
	go n.heartbeatLoop()
	go n.discoveryLoop()

	n.logger.Printf("meshnode: node %s started on port %d", n.nodeID, n.port)
}

// Stop halts every loop, waits up to one second for them to exit, then
// stops the peer health check and the transport, which closes the socket.
// Pending retransmissions are abandoned.
func (n *Node) Stop() {
	close(n.stopCh)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	n.peerMgr.Stop()
	n.sock.Stop()
	n.logger.Printf("meshnode: node %s stopped", n.nodeID)
}

// Set writes key=value locally.
func (n *Node) Set(key string, value any) {
	n.store.Set(key, value)
}

// Get reads key locally.
func (n *Node) Get(key string) (any, bool) {
	return n.store.Get(key)
}

// Delete removes key locally (via tombstone).
func (n *Node) Delete(key string) {
	n.store.Delete(key)
}

// AllData returns every live key/value pair.
func (n *Node) AllData() map[string]any {
	return n.store.AllData()
}

// Status is the shape returned by the Go API's status() operation,
// matching spec.md §6 exactly.
type Status struct {
	NodeID       string      `json:"node_id"`
	Port         int         `json:"port"`
	StateVersion int64       `json:"state_version"`
	DataKeys     int         `json:"data_keys"`
	Peers        peers.Stats `json:"peers"`
	PendingAcks  int         `json:"pending_acks"`
}

// Status reports the node's current health/size snapshot.
func (n *Node) Status() Status {
	return Status{
		NodeID:       n.nodeID,
		Port:         n.port,
		StateVersion: n.store.Version(),
		DataKeys:     len(n.store.Keys()),
		Peers:        n.peerMgr.Stats(),
		PendingAcks:  n.sock.PendingCount(),
	}
}
