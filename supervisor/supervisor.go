// Package supervisor parks the sender between streams: it owns listen
// socket binding with retry, waits for the encoder's first datagram,
// runs the core for the duration of the stream, and detects a stream's
// end by a sustained zero send rate.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/srtla-go/sender/core"
	"github.com/srtla-go/sender/internal"
	"github.com/srtla-go/sender/link"
)

// Options configures a Supervisor. Zero values for the tunables fall
// back to the defaults in New.
type Options struct {
	ListenPort int
	ServerHost string
	ServerPort int
	PoolSize   int

	MaxBindRetries    int
	BindRetryInterval time.Duration
	RateCheckInterval time.Duration
	ZeroRateTimeout   time.Duration

	// OnStatus receives every user-visible status string.
	OnStatus func(string)
	// OnStats receives the per-link stats callback, forwarded from the
	// running core.
	OnStats func(link.Stats)
	// OnRegErr is forwarded from the core when a link receives REG_ERR.
	OnRegErr func(virtualIP string)
	// OnLinkRemoved is forwarded from the core whenever a link is torn
	// down (zombie expiry or a failed socket), so a metrics collector can
	// drop that virtual IP's series immediately.
	OnLinkRemoved func(virtualIP string)
	// OnCoreReady is invoked once per stream session, right after the
	// core starts, so external link-discovery glue can call AddLink on
	// it; the core is torn down again before the next call.
	OnCoreReady func(*core.Core)
}

// Supervisor runs the bind/wait/stream/stop cycle. Each stream session
// gets a freshly constructed *core.Core.
type Supervisor struct {
	internal.Logger
	opts Options
}

// New builds a Supervisor, applying default retry/timeout tunables for
// any zero-valued field in opts.
func New(opts Options, log *slog.Logger) *Supervisor {
	if opts.MaxBindRetries <= 0 {
		opts.MaxBindRetries = 10
	}
	if opts.BindRetryInterval <= 0 {
		opts.BindRetryInterval = 500 * time.Millisecond
	}
	if opts.RateCheckInterval <= 0 {
		opts.RateCheckInterval = 500 * time.Millisecond
	}
	if opts.ZeroRateTimeout <= 0 {
		opts.ZeroRateTimeout = 5 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 8
	}
	return &Supervisor{Logger: internal.Logger{Log: log}, opts: opts}
}

// Run cycles bind -> wait-for-stream -> relay -> stop until ctx is
// cancelled, which is this package's unconditional-teardown mechanism.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.runOneSession(ctx); err != nil {
			return err
		}
	}
}

func (s *Supervisor) runOneSession(ctx context.Context) error {
	s.setStatus(statusWaitingForNetwork())
	listener, err := s.bindWithRetry(ctx)
	if err != nil {
		return err
	}

	c, err := core.NewCore(s.opts.PoolSize, s.Log)
	if err != nil {
		listener.Close()
		return fmt.Errorf("supervisor: new core: %w", err)
	}

	firstPacket := make(chan struct{})
	var closeOnce sync.Once
	c.SetFirstEncoderCallback(func() { closeOnce.Do(func() { close(firstPacket) }) })
	if s.opts.OnStats != nil {
		c.SetStatsCallback(s.opts.OnStats)
	}
	if s.opts.OnRegErr != nil {
		c.SetRegErrCallback(s.opts.OnRegErr)
	}
	if s.opts.OnLinkRemoved != nil {
		c.SetLinkRemovedCallback(s.opts.OnLinkRemoved)
	}

	if err := c.Start(listener, s.opts.ServerHost, s.opts.ServerPort); err != nil {
		listener.Close()
		return fmt.Errorf("supervisor: start core: %w", err)
	}

	if s.opts.OnCoreReady != nil {
		s.opts.OnCoreReady(c)
	}

	s.setStatus(statusWaitingForStream(s.opts.ListenPort))
	select {
	case <-firstPacket:
	case <-ctx.Done():
		c.Stop()
		return nil
	}

	s.setStatus(statusStreaming(s.opts.ListenPort))
	s.monitorRate(ctx, c)

	c.Stop()
	s.setStatus(statusStreamStopped())
	return nil
}

// bindWithRetry opens the listen socket, retrying up to MaxBindRetries
// times at BindRetryInterval when the port is busy.
func (s *Supervisor) bindWithRetry(ctx context.Context) (*net.UDPConn, error) {
	var listener *net.UDPConn
	err := internal.RetryFixed(s.opts.MaxBindRetries, s.opts.BindRetryInterval, func(try int) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l, err := bindListener(s.opts.ListenPort)
		if err != nil {
			s.setStatus(statusPortBusy(s.opts.ListenPort, try, s.opts.MaxBindRetries))
			return err
		}
		listener = l
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: bind listen port %d: %w", s.opts.ListenPort, err)
	}
	return listener, nil
}

// monitorRate samples the core's aggregate data-packets-sent counter
// (control traffic excluded, so idle housekeeping keepalives never mask
// a dead stream) every RateCheckInterval and returns once it has stayed
// unchanged for ZeroRateTimeout — from the moment monitorRate began if
// it never moved, otherwise from the last sample that changed.
func (s *Supervisor) monitorRate(ctx context.Context, c *core.Core) {
	ticker := time.NewTicker(s.opts.RateCheckInterval)
	defer ticker.Stop()

	var lastTotal uint64
	lastChanged := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			total, err := c.TotalDataPacketsSent()
			if err != nil {
				return // core already stopped.
			}
			if total != lastTotal {
				lastTotal = total
				lastChanged = now
			}
			if now.Sub(lastChanged) > s.opts.ZeroRateTimeout {
				return
			}
		}
	}
}

func (s *Supervisor) setStatus(msg string) {
	s.Info("status", slog.String("status", msg))
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(msg)
	}
}
