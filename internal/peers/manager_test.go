package peers

import (
	"net"
	"testing"
	"time"
)

func addr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		t.Fatalf("resolve %q: %v", s, err)
	}
	return a
}

func TestAddOrUpdateIgnoresSelf(t *testing.T) {
	m := NewManager("self", time.Second, 5*time.Second)
	if isNew := m.AddOrUpdate("self", addr(t, "127.0.0.1:1"), 0); isNew {
		t.Fatal("adding self should be ignored, not reported as new")
	}
	if len(m.All()) != 0 {
		t.Fatal("self must not appear in the peer table")
	}
}

func TestAddOrUpdateNewThenRefresh(t *testing.T) {
	m := NewManager("self", time.Second, 5*time.Second)
	var discovered []string
	m.OnPeerDiscovered = func(nodeID string, a *net.UDPAddr) { discovered = append(discovered, nodeID) }

	if !m.AddOrUpdate("peer1", addr(t, "127.0.0.1:1111"), 1) {
		t.Fatal("expected first add to report new=true")
	}
	if m.AddOrUpdate("peer1", addr(t, "127.0.0.1:2222"), 2) {
		t.Fatal("expected second add to report new=false")
	}

	info, ok := m.Get("peer1")
	if !ok {
		t.Fatal("peer1 should be present")
	}
	if info.Address.String() != "127.0.0.1:2222" {
		t.Fatalf("expected address to be updated, got %v", info.Address)
	}
	if info.Version != 2 {
		t.Fatalf("expected version to rise monotonically to 2, got %d", info.Version)
	}
	if len(discovered) != 1 || discovered[0] != "peer1" {
		t.Fatalf("expected exactly one discovery callback, got %v", discovered)
	}
}

func TestMarkFailedThresholdMarksDead(t *testing.T) {
	m := NewManager("self", time.Second, 5*time.Second)
	var failedCalls []string
	m.OnPeerFailed = func(nodeID string) { failedCalls = append(failedCalls, nodeID) }

	m.AddOrUpdate("peer1", addr(t, "127.0.0.1:1"), 0)

	m.MarkFailed("peer1")
	m.MarkFailed("peer1")
	if info, _ := m.Get("peer1"); !info.IsAlive {
		t.Fatal("peer should still be alive after 2 failed pings")
	}

	m.MarkFailed("peer1")
	info, _ := m.Get("peer1")
	if info.IsAlive {
		t.Fatal("peer should be dead after 3 failed pings")
	}
	if len(failedCalls) != 1 {
		t.Fatalf("expected exactly one OnPeerFailed call, got %d", len(failedCalls))
	}

	// Further failures must not re-fire the callback.
	m.MarkFailed("peer1")
	if len(failedCalls) != 1 {
		t.Fatalf("OnPeerFailed should not re-fire once already dead, got %d calls", len(failedCalls))
	}
}

func TestPeersNeedingSync(t *testing.T) {
	m := NewManager("self", time.Second, 5*time.Second)
	m.AddOrUpdate("peer1", addr(t, "127.0.0.1:1"), 0)

	needing := m.PeersNeedingSync(10 * time.Millisecond)
	if len(needing) != 1 {
		t.Fatalf("expected peer1 to need sync, got %v", needing)
	}

	m.MarkSynced("peer1")
	needing = m.PeersNeedingSync(time.Hour)
	if len(needing) != 0 {
		t.Fatalf("expected no peers needing sync after recent MarkSynced, got %v", needing)
	}
}

func TestStatsCounts(t *testing.T) {
	m := NewManager("self", time.Second, 5*time.Second)
	m.AddBootstrapPeer(addr(t, "127.0.0.1:9000"))
	m.AddOrUpdate("p1", addr(t, "127.0.0.1:1"), 0)
	m.AddOrUpdate("p2", addr(t, "127.0.0.1:2"), 0)

	m.MarkFailed("p2")
	m.MarkFailed("p2")
	m.MarkFailed("p2")

	stats := m.Stats()
	if stats.Total != 2 || stats.Alive != 1 || stats.Dead != 1 || stats.Bootstrap != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHealthCheckLoopMarksTimedOutPeerDead(t *testing.T) {
	m := NewManager("self", 10*time.Millisecond, 20*time.Millisecond)
	m.AddOrUpdate("p1", addr(t, "127.0.0.1:1"), 0)
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, _ := m.Get("p1"); !info.IsAlive {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected peer to be marked dead after exceeding peer_timeout with no contact")
}
