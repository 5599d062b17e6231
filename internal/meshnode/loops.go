package meshnode

import (
	"net"
	"strconv"
	"time"

	"meshkv/internal/transport"
)

// syncLoop periodically sends a SYNC_REQUEST to every peer overdue for a
// sync, per spec.md §4.4.
func (n *Node) syncLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.runSyncRound()
		}
	}
}

func (n *Node) runSyncRound() {
	for _, p := range n.peerMgr.PeersNeedingSync(n.syncInterval) {
		addr := p.Address
		n.syncGroup.Do(p.NodeID, func() (any, error) {
			n.sendSyncRequest(addr)
			return nil, nil
		})
	}
}

// triggerSync fires an out-of-band sync request immediately, for a peer just
// discovered via DISCOVERY rather than waiting for the next sync tick. The
// singleflight group collapses a trigger landing at the same moment the
// periodic loop is already syncing the same peer into a single request.
func (n *Node) triggerSync(nodeID string, addr *net.UDPAddr) {
	go func() {
		n.syncGroup.Do(nodeID, func() (any, error) {
			n.sendSyncRequest(addr)
			return nil, nil
		})
	}()
}

func (n *Node) sendSyncRequest(addr *net.UDPAddr) {
	msg := syncRequestMsg{NodeID: n.nodeID, Version: n.store.Version()}
	if _, err := n.sock.SendReliable(addr, transport.TypeSyncRequest, msg); err != nil {
		n.logger.Printf("meshnode: sync request to %s failed: %v", addr, err)
	}
}

// heartbeatLoop broadcasts liveness to every peer currently believed alive.
// Heartbeats are unreliable: a dropped one just costs a little latency
// before the peer's own health check notices silence.
func (n *Node) heartbeatLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.broadcastHeartbeat()
		}
	}
}

func (n *Node) broadcastHeartbeat() {
	msg := heartbeatMsg{
		NodeID:    n.nodeID,
		Version:   n.store.Version(),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	for _, p := range n.peerMgr.AlivePeers() {
		if _, err := n.sock.SendUnreliable(p.Address, transport.TypeHeartbeat, msg); err != nil {
			n.logger.Printf("meshnode: heartbeat to %s failed: %v", p.NodeID, err)
		}
	}
}

// discoveryLoop advertises this node and its known peer table to bootstrap
// seeds and current peers: once shortly after start, then on a slow cadence,
// per spec.md §4.4.
func (n *Node) discoveryLoop() {
	defer n.wg.Done()
	timer := time.NewTimer(discoveryInitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-timer.C:
			n.runDiscoveryRound()
			timer.Reset(discoveryInterval)
		}
	}
}

func (n *Node) runDiscoveryRound() {
	msg := discoveryMsg{NodeID: n.nodeID, Port: n.port, Peers: n.buildPeerAdverts()}

	targets := n.peerMgr.BootstrapAddresses()
	for _, p := range n.peerMgr.AlivePeers() {
		targets = append(targets, p.Address)
	}
	for _, addr := range targets {
		if _, err := n.sock.SendUnreliable(addr, transport.TypeDiscovery, msg); err != nil {
			n.logger.Printf("meshnode: discovery to %s failed: %v", addr, err)
		}
	}
}

func (n *Node) buildPeerAdverts() []peerAdvert {
	all := n.peerMgr.All()
	adverts := make([]peerAdvert, 0, len(all))
	for _, p := range all {
		if !p.IsAlive {
			continue
		}
		host, portStr, err := net.SplitHostPort(p.Address.String())
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		adverts = append(adverts, peerAdvert{NodeID: p.NodeID, Host: host, Port: port})
	}
	return adverts
}
