package meshnode

import (
	"fmt"
	"net"

	"meshkv/internal/transport"
)

// registerHandlers wires the four protocol message types to the transport
// socket. Grounded on original_source/mesh_node.py's handle_* methods.
func (n *Node) registerHandlers() {
	n.sock.RegisterHandler(transport.TypeSyncRequest, n.handleSyncRequest)
	n.sock.RegisterHandler(transport.TypeSyncResponse, n.handleSyncResponse)
	n.sock.RegisterHandler(transport.TypeHeartbeat, n.handleHeartbeat)
	n.sock.RegisterHandler(transport.TypeDiscovery, n.handleDiscovery)
}

func (n *Node) handleSyncRequest(payload []byte, addr *net.UDPAddr) {
	var msg syncRequestMsg
	if err := wireDecode(payload, &msg); err != nil {
		n.logger.Printf("meshnode: bad sync request from %s: %v", addr, err)
		return
	}
	n.peerMgr.AddOrUpdate(msg.NodeID, addr, msg.Version)

	resp := syncResponseMsg{NodeID: n.nodeID, State: n.store.Snapshot()}
	if _, err := n.sock.SendReliable(addr, transport.TypeSyncResponse, resp); err != nil {
		n.logger.Printf("meshnode: sync response to %s failed: %v", addr, err)
	}
}

func (n *Node) handleSyncResponse(payload []byte, addr *net.UDPAddr) {
	var msg syncResponseMsg
	if err := wireDecode(payload, &msg); err != nil {
		n.logger.Printf("meshnode: bad sync response from %s: %v", addr, err)
		return
	}

	n.store.Merge(msg.State.Data, msg.State.Tombstones, msg.State.VectorClock)
	n.peerMgr.AddOrUpdate(msg.NodeID, addr, msg.State.Version)
	n.peerMgr.MarkSynced(msg.NodeID)
}

func (n *Node) handleHeartbeat(payload []byte, addr *net.UDPAddr) {
	var msg heartbeatMsg
	if err := wireDecode(payload, &msg); err != nil {
		n.logger.Printf("meshnode: bad heartbeat from %s: %v", addr, err)
		return
	}
	n.peerMgr.AddOrUpdate(msg.NodeID, addr, msg.Version)
}

// handleDiscovery absorbs a peer's advertisement of itself and its own
// known peers, eagerly triggers a sync with anything newly learned so
// convergence doesn't wait for the next sync tick, and — per spec.md §4.4
// ("reply (unreliably) with the local alive-peer list") — always replies
// with its own advertisement so peer lists propagate transitively through
// the mesh rather than only along the edges a node was bootstrapped with.
func (n *Node) handleDiscovery(payload []byte, addr *net.UDPAddr) {
	var msg discoveryMsg
	if err := wireDecode(payload, &msg); err != nil {
		n.logger.Printf("meshnode: bad discovery from %s: %v", addr, err)
		return
	}

	senderAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", addr.IP.String(), msg.Port))
	if err != nil {
		senderAddr = addr
	}
	if n.peerMgr.AddOrUpdate(msg.NodeID, senderAddr, 0) {
		n.triggerSync(msg.NodeID, senderAddr)
	}

	for _, advert := range msg.Peers {
		if advert.NodeID == n.nodeID {
			continue
		}
		peerAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", advert.Host, advert.Port))
		if err != nil {
			continue
		}
		if n.peerMgr.AddOrUpdate(advert.NodeID, peerAddr, 0) {
			n.triggerSync(advert.NodeID, peerAddr)
		}
	}

	reply := discoveryMsg{NodeID: n.nodeID, Port: n.port, Peers: n.buildPeerAdverts()}
	if _, err := n.sock.SendUnreliable(senderAddr, transport.TypeDiscovery, reply); err != nil {
		n.logger.Printf("meshnode: discovery reply to %s failed: %v", senderAddr, err)
	}
}
