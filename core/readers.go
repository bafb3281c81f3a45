package core

import (
	"net"

	"github.com/srtla-go/sender/link"
)

// encoderDatagram is one UDP read from the listener socket, tagged with
// its source so the core can track the current encoder endpoint.
type encoderDatagram struct {
	payload []byte
	src     *net.UDPAddr
	err     error
}

// linkDatagram is one UDP read from a link socket, tagged with the
// Link it came from so a stale reader (socket already replaced or
// closed) can be told apart from the current one by pointer identity.
type linkDatagram struct {
	l       *link.Link
	payload []byte
	err     error
}

// readListenerLoop feeds encoderDatagram events to out until the
// listener errors (typically because Stop closed it) or quit closes.
func readListenerLoop(conn *net.UDPConn, out chan<- encoderDatagram, quit <-chan struct{}) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			trySend(out, encoderDatagram{err: err}, quit)
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		if !trySend(out, encoderDatagram{payload: payload, src: addr}, quit) {
			return
		}
	}
}

// readLinkLoop feeds linkDatagram events for l to out until its socket
// errors (closed on removal, zombie reap or Stop) or quit closes.
func readLinkLoop(l *link.Link, out chan<- linkDatagram, quit <-chan struct{}) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := l.Sock.Read(buf)
		if err != nil {
			trySend(out, linkDatagram{l: l, err: err}, quit)
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		if !trySend(out, linkDatagram{l: l, payload: payload}, quit) {
			return
		}
	}
}

// trySend delivers v on out unless quit fires first, in which case it
// reports false so the caller's read loop exits instead of leaking.
func trySend[T any](out chan<- T, v T, quit <-chan struct{}) bool {
	select {
	case out <- v:
		return true
	case <-quit:
		return false
	}
}
