//go:build !unix

package supervisor

import (
	"net"
)

// bindListener opens a plain UDP listener on port. Non-unix platforms
// have no portable SO_REUSEADDR-before-bind equivalent through the
// standard library, so a just-closed predecessor's socket lingering in
// TIME_WAIT can make one or more retries in bindWithRetry fail before
// the kernel releases it; MaxBindRetries exists for exactly this case.
func bindListener(port int) (*net.UDPConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{Port: port})
}
