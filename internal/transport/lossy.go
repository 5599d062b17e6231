package transport

import (
	"math/rand"
	"net"
)

// LossyConn wraps a *net.UDPConn and drops outgoing datagrams at random
// with probability DropRate, independently per write. It implements
// udpConn, so it can stand in for a real kernel socket anywhere a Socket
// is constructed via NewWithConn.
//
// This is the mechanism scenario 3 ("Convergence under 30% loss") and
// scenario 4 ("Partition healing", DropRate 1.0) drive: it emulates a
// lossy link without needing OS-level packet filtering, and the same type
// backs cmd/meshctl's loadgen subcommand so an operator can reproduce the
// same convergence behavior interactively.
type LossyConn struct {
	*net.UDPConn
	DropRate float64
	rng      *rand.Rand
}

// NewLossyConn wraps conn with the given per-datagram drop probability
// (0.0 = perfect link, 1.0 = fully partitioned). seed makes the drop
// sequence reproducible across test runs.
func NewLossyConn(conn *net.UDPConn, dropRate float64, seed int64) *LossyConn {
	return &LossyConn{UDPConn: conn, DropRate: dropRate, rng: rand.New(rand.NewSource(seed))}
}

// WriteToUDP drops the datagram with probability DropRate instead of
// sending it. A dropped write reports success to the caller — from the
// sender's point of view this is indistinguishable from a datagram lost
// in transit, which is the whole point of the simulation.
func (c *LossyConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	if c.rng.Float64() < c.DropRate {
		return len(b), nil
	}
	return c.UDPConn.WriteToUDP(b, addr)
}

// SetDropRate adjusts the drop probability at runtime, letting a test or
// the loadgen command simulate a partition healing mid-run.
func (c *LossyConn) SetDropRate(rate float64) {
	c.DropRate = rate
}
