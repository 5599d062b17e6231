//go:build !unix

package transport

import "syscall"

// reuseAddrControl is a no-op on non-unix platforms; address reuse is best
// effort there and not required for correctness.
func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
