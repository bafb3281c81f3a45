package core

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtla-go/sender/codec"
	"github.com/srtla-go/sender/link"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	c, err := NewCore(4, nil)
	require.NoError(t, err)
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	require.NoError(t, c.Start(listener, "127.0.0.1", 0))
	t.Cleanup(c.Stop)
	return c
}

// pipedServer is the server-side end of a link backed by an in-process
// net.Pipe. A background reader collects every frame the core writes
// into frames, so the core's loop goroutine never blocks on the
// unbuffered pipe.
type pipedServer struct {
	net.Conn
	frames chan []byte
}

// addPipedLink adds a link backed by an in-process net.Pipe and returns
// the server-side end, letting the test play the SRTLA server.
func addPipedLink(t *testing.T, c *Core, virtualIP string) *pipedServer {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	s := &pipedServer{Conn: serverSide, frames: make(chan []byte, 256)}
	go drainPipe(serverSide, s.frames)
	added, err := c.AddLink(clientSide, virtualIP, 0, link.TransportCellular)
	require.NoError(t, err)
	require.True(t, added)
	return s
}

// drainPipe reads conn until it errors, handing each frame to frames
// (dropped when frames is full or nil).
func drainPipe(conn net.Conn, frames chan<- []byte) {
	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frame := append([]byte(nil), buf[:n]...)
		select {
		case frames <- frame:
		default:
		}
	}
}

// readFrame returns the next frame the core wrote to s, skipping the
// KEEPALIVE frames housekeeping sends on every tick.
func readFrame(t *testing.T, s *pipedServer) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-s.frames:
			if codec.Classify(frame) != codec.KindSRTLAKeepalive {
				return frame
			}
		case <-deadline:
			require.FailNow(t, "no frame from the core within 2s")
			return nil
		}
	}
}

func TestAddLinkSendsReg1(t *testing.T) {
	c := newTestCore(t)
	server := addPipedLink(t, c, "vip0")
	frame := readFrame(t, server)
	assert.Equal(t, codec.KindSRTLAReg1, codec.Classify(frame))
}

func TestAddLinkRejectsDuplicateNonZombie(t *testing.T) {
	c := newTestCore(t)
	addPipedLink(t, c, "vip0")
	other, _ := net.Pipe()
	added, err := c.AddLink(other, "vip0", 0, link.TransportWifi)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestLinkReadErrorClosesAndReleasesVirtualIP(t *testing.T) {
	c := newTestCore(t)
	server := addPipedLink(t, c, "vip0")
	server.Close() // unblocks the link's Read with an error, failing it.

	require.Eventually(t, func() bool {
		replacement, peer := net.Pipe()
		go drainPipe(peer, nil)
		added, err := c.AddLink(replacement, "vip0", 0, link.TransportWifi)
		if err != nil || !added {
			replacement.Close()
			return false
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "failed link must release its virtual ip for reuse")
}

func TestReg2MatchCompletesGroupIDAndBroadcasts(t *testing.T) {
	c := newTestCore(t)
	serverA := addPipedLink(t, c, "vipA")
	serverB := addPipedLink(t, c, "vipB")
	readFrame(t, serverA) // REG1 on A
	readFrame(t, serverB) // REG1 on B

	reg2 := make([]byte, codec.RegPayloadLen)
	serverID := c.groupID
	serverID[200] = 0xAB // second half may differ freely
	copy(reg2[2:], serverID[:])
	reg2[0], reg2[1] = 0x92, 0x01 // REG2 type, big-endian 0x9201

	_, err := serverA.Write(reg2)
	require.NoError(t, err)

	broadcastOnB := readFrame(t, serverB)
	assert.Equal(t, codec.KindSRTLAReg2, codec.Classify(broadcastOnB))
	gotID, ok := codec.ParseReg(broadcastOnB)
	require.True(t, ok)
	assert.Equal(t, serverID, gotID)
}

func TestReg3TransitionsToConnected(t *testing.T) {
	c := newTestCore(t)
	server := addPipedLink(t, c, "vip0")
	readFrame(t, server) // REG1

	reg3 := make([]byte, 2)
	reg3[0], reg3[1] = 0x92, 0x02
	_, err := server.Write(reg3)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		count, err := c.ConnectedLinkCount()
		return err == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoveLinkRefusesLastConnected(t *testing.T) {
	c := newTestCore(t)
	server := addPipedLink(t, c, "vip0")
	readFrame(t, server)
	reg3 := []byte{0x92, 0x02}
	_, err := server.Write(reg3)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, _ := c.ConnectedLinkCount()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	removed, err := c.RemoveLink("vip0")
	require.ErrorIs(t, err, ErrWouldOrphan)
	assert.False(t, removed)
}

func TestAllocateAndReleaseVirtualIP(t *testing.T) {
	c := newTestCore(t)
	label, ok, err := c.AllocateVirtualIP()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "vip0", label)

	require.NoError(t, c.ReleaseVirtualIP(label))
	again, ok, err := c.AllocateVirtualIP()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, label, again)
}

func TestCallAfterStopReturnsErrStopped(t *testing.T) {
	c, err := NewCore(2, nil)
	require.NoError(t, err)
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	require.NoError(t, c.Start(listener, "127.0.0.1", 0))
	c.Stop()

	_, err = c.ConnectedLinkCount()
	assert.ErrorIs(t, err, ErrStopped)
}
