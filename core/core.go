// Package core implements the SRTLA sender's single-threaded event
// loop: it owns the link table, the encoder-facing listener, the group
// identity, and drives registration, keepalives, housekeeping, zombie
// reaping and stats emission off one loop clock.
package core

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/srtla-go/sender/codec"
	"github.com/srtla-go/sender/internal"
	"github.com/srtla-go/sender/ippool"
	"github.com/srtla-go/sender/link"
)

const (
	tickInterval       = 200 * time.Millisecond
	statsInterval      = 1 * time.Second
	zombieReapInterval = 5 * time.Second
	encoderIdleTimeout = 10 * time.Second

	// maxDatagramSize comfortably covers an SRT packet over a
	// conventional Ethernet/cellular path MTU.
	maxDatagramSize = 1500
)

// Core owns one streaming session's link set, listener and group
// identity. All mutation of link state happens on the goroutine started
// by Start. The Set*Callback methods, Start and Stop run on the caller's
// goroutine and are not safe to call concurrently; the other control
// methods are safe to call concurrently because they are forwarded to
// the loop goroutine through an inbox channel.
type Core struct {
	internal.Logger

	links map[string]*link.Link
	order []string // insertion order; scheduler tie-break and iteration order for broadcasts.
	pool  *ippool.Pool

	groupID [codec.GroupIDLen]byte

	listener    *net.UDPConn
	serverAddr  *net.UDPAddr
	encoderAddr *net.UDPAddr
	lastEncoder time.Time

	inbox      chan func()
	stop       chan struct{}
	done       chan struct{}
	listenerRx chan encoderDatagram
	linkRx     chan linkDatagram

	onStats        func(link.Stats)
	onRegErr       func(virtualIP string)
	onLinkRemoved  func(virtualIP string)
	onFirstEncoder func()
	sawEncoder     bool
}

// NewCore builds a Core with a freshly randomized group identity and a
// virtual-IP pool of poolSize labels.
func NewCore(poolSize int, log *slog.Logger) (*Core, error) {
	c := &Core{
		Logger: internal.Logger{Log: log},
		links:  make(map[string]*link.Link),
		pool:   ippool.New(poolSize),
	}
	if _, err := rand.Read(c.groupID[:]); err != nil {
		return nil, fmt.Errorf("core: generate group id: %w", err)
	}
	return c, nil
}

// SetStatsCallback registers the per-second stats sink. Must
// be called before Start; it is not safe to change while the loop runs.
func (c *Core) SetStatsCallback(fn func(link.Stats)) { c.onStats = fn }

// SetRegErrCallback registers a callback invoked when any link receives
// SRTLA REG_ERR, surfacing it to the supervisor. Must be
// called before Start.
func (c *Core) SetRegErrCallback(fn func(virtualIP string)) { c.onRegErr = fn }

// SetLinkRemovedCallback registers a callback invoked whenever a link is
// torn down and forgotten — a zombie that outlived its grace period or a
// link failed by a read error — so a metrics collector can drop that
// virtual IP's series instead of waiting for it to go stale. Must be
// called before Start.
func (c *Core) SetLinkRemovedCallback(fn func(virtualIP string)) { c.onLinkRemoved = fn }

// SetFirstEncoderCallback registers a callback fired exactly once, the
// first time a datagram arrives on the listener, letting the supervisor
// tell "parked, listener open" apart from "actively relaying a stream".
// Must be called before Start.
func (c *Core) SetFirstEncoderCallback(fn func()) { c.onFirstEncoder = fn }

// Start adopts an already-bound encoder-facing listener (bind and its
// retry policy are the supervisor's responsibility), resolves the
// server address and starts the event loop.
func (c *Core) Start(listener *net.UDPConn, serverHost string, serverPort int) error {
	serverAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", serverHost, serverPort))
	if err != nil {
		return fmt.Errorf("core: resolve server address: %w", err)
	}

	c.serverAddr = serverAddr
	c.listener = listener
	c.inbox = make(chan func())
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.listenerRx = make(chan encoderDatagram, 8)
	c.linkRx = make(chan linkDatagram, 64)

	go readListenerLoop(c.listener, c.listenerRx, c.done)
	go c.run()
	return nil
}

// ListenAddr returns the listener's bound local address. Only valid
// after a successful Start.
func (c *Core) ListenAddr() net.Addr { return c.listener.LocalAddr() }

// Stop drains the inbox, closes the listener (unblocking the tick
// wait), joins the loop and closes every remaining link socket. Calling
// Stop on a Core that was never started, or was already stopped, is a
// no-op.
func (c *Core) Stop() {
	if c.stop == nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	close(c.stop)
	c.listener.Close()
	<-c.done
	for _, vip := range c.order {
		c.links[vip].Sock.Close()
	}
	c.links = make(map[string]*link.Link)
	c.order = nil
}

func (c *Core) run() {
	defer close(c.done)
	tick := time.NewTicker(tickInterval)
	defer tick.Stop()

	lastStats := time.Time{}
	lastZombieReap := time.Time{}

	for {
		select {
		case <-c.stop:
			for {
				select {
				case fn := <-c.inbox:
					fn()
				default:
					return
				}
			}
		case fn := <-c.inbox:
			fn()
		case dg := <-c.listenerRx:
			c.handleEncoderDatagram(dg)
		case dg := <-c.linkRx:
			c.handleLinkDatagram(dg)
		case now := <-tick.C:
			c.housekeeping(now)
			c.sendKeepalives(now)
			if now.Sub(lastStats) >= statsInterval {
				c.emitStats(now)
				lastStats = now
			}
			if now.Sub(lastZombieReap) >= zombieReapInterval {
				c.reapZombies(now)
				lastZombieReap = now
			}
			c.checkEncoderIdle(now)
		}
	}
}

// housekeeping resends REG1 on any link that has gone idle past the
// timeout, and on any link a refresh just reset to Disconnected. A
// Failed link never lingers in c.order (handleLinkDatagram reaps it
// synchronously), so only Zombie needs skipping here.
func (c *Core) housekeeping(now time.Time) {
	for _, vip := range c.order {
		l := c.links[vip]
		if l.State() == link.Zombie {
			continue
		}
		if l.State() == link.Disconnected || l.IsTimedOut(now) {
			l.SetState(link.RegisteringReg1)
			c.sendReg1(l)
		}
	}
}

func (c *Core) sendKeepalives(now time.Time) {
	frame := codec.BuildKeepalive(uint64(now.UnixMilli()))
	for _, vip := range c.order {
		l := c.links[vip]
		if l.State() == link.Zombie {
			continue
		}
		c.write(l, frame)
	}
}

func (c *Core) reapZombies(now time.Time) {
	kept := c.order[:0]
	for _, vip := range c.order {
		l := c.links[vip]
		if l.State() == link.Zombie && l.IsZombieExpired(now) {
			c.forgetLink(vip, "zombie expired")
			continue
		}
		kept = append(kept, vip)
	}
	c.order = kept
}

// forgetLink closes vip's socket, drops it from the link table, returns
// its label to the pool and notifies onLinkRemoved. Callers that reach
// it while filtering c.order (reapZombies) leave c.order to the filter;
// callers acting on a single link (a Failed transition) must also call
// removeFromOrderLocked themselves.
func (c *Core) forgetLink(vip string, reason string) {
	l, ok := c.links[vip]
	if !ok {
		return
	}
	l.Sock.Close()
	delete(c.links, vip)
	c.pool.Release(vip)
	if c.onLinkRemoved != nil {
		c.onLinkRemoved(vip)
	}
	c.Info("link removed", slog.String("virtual_ip", vip), slog.String("reason", reason))
}

func (c *Core) emitStats(now time.Time) {
	if c.onStats == nil {
		return
	}
	for _, vip := range c.order {
		c.onStats(c.links[vip].Snapshot(now))
	}
}

func (c *Core) checkEncoderIdle(now time.Time) {
	if c.encoderAddr != nil && now.Sub(c.lastEncoder) > encoderIdleTimeout {
		c.Info("encoder endpoint idle, forgetting", slog.String("addr", c.encoderAddr.String()))
		c.encoderAddr = nil
	}
}

func (c *Core) sendReg1(l *link.Link) {
	c.write(l, codec.BuildReg1(&c.groupID))
}

// write sends a control frame on l's socket, logging and marking the
// link as timed-out (instead of removing it) on failure.
func (c *Core) write(l *link.Link, frame []byte) {
	now := time.Now()
	if _, err := l.Sock.Write(frame); err != nil {
		c.Warn("link send failed", slog.String("virtual_ip", l.VirtualIP), slog.String("err", err.Error()))
		l.MarkSendFailure(now)
		return
	}
	l.MarkControlSent(now, len(frame))
}

func (c *Core) countConnectedNonZombieLocked() int {
	n := 0
	for _, vip := range c.order {
		if c.links[vip].State() == link.Connected {
			n++
		}
	}
	return n
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
