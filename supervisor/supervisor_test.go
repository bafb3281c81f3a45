package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srtla-go/sender/core"
	"github.com/srtla-go/sender/link"
)

func TestBindWithRetrySucceedsImmediatelyOnFreePort(t *testing.T) {
	s := New(Options{ListenPort: 0, MaxBindRetries: 3, BindRetryInterval: 10 * time.Millisecond}, nil)
	listener, err := s.bindWithRetry(context.Background())
	require.NoError(t, err)
	defer listener.Close()
}

func TestBindWithRetryReportsPortBusy(t *testing.T) {
	busy, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	defer busy.Close()
	port := busy.LocalAddr().(*net.UDPAddr).Port

	var statuses []string
	s := New(Options{
		ListenPort:        port,
		MaxBindRetries:    2,
		BindRetryInterval: 5 * time.Millisecond,
		OnStatus:          func(msg string) { statuses = append(statuses, msg) },
	}, nil)

	_, err = s.bindWithRetry(context.Background())
	assert.Error(t, err)
	assert.Contains(t, statuses[len(statuses)-1], "in use")
}

func TestMonitorRateReturnsAfterZeroRateTimeout(t *testing.T) {
	c, err := core.NewCore(2, nil)
	require.NoError(t, err)
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	require.NoError(t, c.Start(listener, "127.0.0.1", 0))
	defer c.Stop()

	s := New(Options{RateCheckInterval: 10 * time.Millisecond, ZeroRateTimeout: 30 * time.Millisecond}, nil)

	done := make(chan struct{})
	go func() {
		s.monitorRate(context.Background(), c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitorRate did not return after sustained zero rate")
	}
}

// TestMonitorRateIgnoresKeepaliveTrafficOnActiveLinks guards against
// sampling a counter that housekeeping keeps moving on its own: a link
// that never carries encoder data still gets a REG1 and periodic
// keepalives written to it every tick, and monitorRate must not mistake
// that control traffic for a live stream.
func TestMonitorRateIgnoresKeepaliveTrafficOnActiveLinks(t *testing.T) {
	c, err := core.NewCore(2, nil)
	require.NoError(t, err)
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	require.NoError(t, c.Start(listener, "127.0.0.1", 0))
	defer c.Stop()

	clientSide, serverSide := net.Pipe()

	// Drain every frame the core writes (REG1, keepalives) so the
	// core's loop goroutine never blocks on the unbuffered pipe.
	go func() {
		buf := make([]byte, 2048)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	added, err := c.AddLink(clientSide, "vip0", 0, link.TransportCellular)
	require.NoError(t, err)
	require.True(t, added)

	s := New(Options{RateCheckInterval: 10 * time.Millisecond, ZeroRateTimeout: 30 * time.Millisecond}, nil)

	done := make(chan struct{})
	go func() {
		s.monitorRate(context.Background(), c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitorRate did not return despite only control traffic on the link")
	}
}

func TestMonitorRateStopsOnContextCancel(t *testing.T) {
	c, err := core.NewCore(2, nil)
	require.NoError(t, err)
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	require.NoError(t, c.Start(listener, "127.0.0.1", 0))
	defer c.Stop()

	s := New(Options{RateCheckInterval: 10 * time.Millisecond, ZeroRateTimeout: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.monitorRate(ctx, c)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitorRate did not return on context cancel")
	}
}

func TestRunStopsOnContextCancelBeforeStream(t *testing.T) {
	s := New(Options{ListenPort: 0, MaxBindRetries: 1, BindRetryInterval: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
