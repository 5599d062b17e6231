// Package peers tracks discovered peer nodes, their liveness, and their
// sync recency, and runs the heartbeat-based failure-detection loop.
//
// Grounded on the teacher's internal/cluster/membership.go locking idiom
// (a sync.RWMutex over a map[string]*Node) and restructured around
// original_source/peer_manager.py's PeerInfo/PeerManager semantics.
package peers

import (
	"net"
	"sync"
	"time"
)

// Info is everything known about one peer.
type Info struct {
	NodeID      string
	Address     *net.UDPAddr
	LastSeen    time.Time
	LastSync    time.Time
	Version     int64
	IsAlive     bool
	FailedPings int
}

// NeedsSync reports whether this peer hasn't been synced within interval.
func (i *Info) NeedsSync(interval time.Duration) bool {
	return time.Since(i.LastSync) > interval
}

// OnPeerDiscovered fires when a brand-new peer is first seen.
type OnPeerDiscovered func(nodeID string, addr *net.UDPAddr)

// OnPeerFailed fires when a peer crosses the failed-ping threshold and is
// marked dead.
type OnPeerFailed func(nodeID string)

const failedPingsThreshold = 3

// Manager tracks the full peer table for one node.
type Manager struct {
	selfID       string
	heartbeatInt time.Duration
	peerTimeout  time.Duration

	mu    sync.RWMutex
	peers map[string]*Info

	bootstrapMu sync.Mutex
	bootstrap   map[string]*net.UDPAddr

	OnPeerDiscovered OnPeerDiscovered
	OnPeerFailed     OnPeerFailed

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a Manager for selfID. heartbeatInterval paces the
// health-check loop; peerTimeout is how long without contact before a peer
// is considered failing.
func NewManager(selfID string, heartbeatInterval, peerTimeout time.Duration) *Manager {
	return &Manager{
		selfID:       selfID,
		heartbeatInt: heartbeatInterval,
		peerTimeout:  peerTimeout,
		peers:        make(map[string]*Info),
		bootstrap:    make(map[string]*net.UDPAddr),
		stopCh:       make(chan struct{}),
	}
}

// AddBootstrapPeer registers a seed address. The address is not checked
// against this node's own; a seed that turns out to be this node is
// ignored later, when AddOrUpdate sees its own node id.
func (m *Manager) AddBootstrapPeer(addr *net.UDPAddr) {
	m.bootstrapMu.Lock()
	defer m.bootstrapMu.Unlock()
	m.bootstrap[addr.String()] = addr
}

// BootstrapAddresses returns the current seed set.
func (m *Manager) BootstrapAddresses() []*net.UDPAddr {
	m.bootstrapMu.Lock()
	defer m.bootstrapMu.Unlock()
	out := make([]*net.UDPAddr, 0, len(m.bootstrap))
	for _, a := range m.bootstrap {
		out = append(out, a)
	}
	return out
}

// AddOrUpdate inserts a newly-seen peer or refreshes an existing one's
// liveness, address, and version. It ignores attempts to add self. Returns
// whether this was a brand-new peer.
func (m *Manager) AddOrUpdate(nodeID string, addr *net.UDPAddr, version int64) bool {
	if nodeID == m.selfID {
		return false
	}

	m.mu.Lock()
	info, exists := m.peers[nodeID]
	isNew := !exists
	if isNew {
		info = &Info{
			NodeID:   nodeID,
			Address:  addr,
			LastSeen: time.Now(),
			IsAlive:  true,
			Version:  version,
		}
		m.peers[nodeID] = info
	} else {
		info.LastSeen = time.Now()
		info.IsAlive = true
		info.FailedPings = 0
		info.Address = addr
		if version > info.Version {
			info.Version = version
		}
	}
	m.mu.Unlock()

	if isNew && m.OnPeerDiscovered != nil {
		m.OnPeerDiscovered(nodeID, addr)
	}
	return isNew
}

// MarkSynced records that a sync with nodeID just completed.
func (m *Manager) MarkSynced(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.peers[nodeID]; ok {
		info.LastSync = time.Now()
	}
}

// MarkFailed increments the failed-ping count for nodeID and, on crossing
// the threshold, marks it dead and fires OnPeerFailed.
func (m *Manager) MarkFailed(nodeID string) {
	m.mu.Lock()
	info, ok := m.peers[nodeID]
	var justDied bool
	if ok {
		info.FailedPings++
		if info.FailedPings >= failedPingsThreshold && info.IsAlive {
			info.IsAlive = false
			justDied = true
		}
	}
	m.mu.Unlock()

	if justDied && m.OnPeerFailed != nil {
		m.OnPeerFailed(nodeID)
	}
}

// Get returns a copy of the peer's Info.
func (m *Manager) Get(nodeID string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.peers[nodeID]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// All returns a copy of every known peer.
func (m *Manager) All() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.peers))
	for _, info := range m.peers {
		out = append(out, *info)
	}
	return out
}

// AlivePeers returns only peers currently considered alive.
func (m *Manager) AlivePeers() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Info
	for _, info := range m.peers {
		if info.IsAlive {
			out = append(out, *info)
		}
	}
	return out
}

// PeersNeedingSync returns alive peers whose last sync is older than interval.
func (m *Manager) PeersNeedingSync(interval time.Duration) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Info
	for _, info := range m.peers {
		if info.IsAlive && info.NeedsSync(interval) {
			out = append(out, *info)
		}
	}
	return out
}

// Stats is the counts reported by Node.Status().
type Stats struct {
	Total     int `json:"total"`
	Alive     int `json:"alive"`
	Dead      int `json:"dead"`
	Bootstrap int `json:"bootstrap"`
}

// Stats summarizes peer counts for status reporting.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	alive := 0
	for _, info := range m.peers {
		if info.IsAlive {
			alive++
		}
	}
	total := len(m.peers)
	m.mu.RUnlock()

	m.bootstrapMu.Lock()
	bootstrap := len(m.bootstrap)
	m.bootstrapMu.Unlock()

	return Stats{Total: total, Alive: alive, Dead: total - alive, Bootstrap: bootstrap}
}

// Start launches the periodic health-check loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.healthCheckLoop()
}

// Stop halts the health-check loop and joins it.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// healthCheckLoop marks peers failing once they've been silent for longer
// than peerTimeout, every heartbeatInterval, per spec.md §4.3.
func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.heartbeatInt)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.RLock()
			var stale []string
			now := time.Now()
			for nodeID, info := range m.peers {
				if info.IsAlive && now.Sub(info.LastSeen) > m.peerTimeout {
					stale = append(stale, nodeID)
				}
			}
			m.mu.RUnlock()

			for _, nodeID := range stale {
				m.MarkFailed(nodeID)
			}
		}
	}
}
