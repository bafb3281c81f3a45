package core

import (
	"errors"
	"time"

	"github.com/srtla-go/sender/codec"
	"github.com/srtla-go/sender/link"
)

var (
	// ErrStopped is returned by any control call made after Stop has
	// been called, or before Start.
	ErrStopped = errors.New("core: not running")
	// ErrUnknownLink is returned by RemoveLink for a virtual-IP with no
	// live link.
	ErrUnknownLink = errors.New("core: unknown virtual ip")
	// ErrWouldOrphan is the safety refusal triggered when removing this
	// link would leave zero Connected non-zombie links.
	ErrWouldOrphan = errors.New("core: refusing to remove the last connected link")
)

// call forwards fn to the core's loop goroutine and waits for its
// result, returning ErrStopped if the loop is not running.
func call[T any](c *Core, fn func() T) (T, error) {
	var zero T
	if c.done == nil {
		return zero, ErrStopped
	}
	result := make(chan T, 1)
	wrapped := func() { result <- fn() }
	select {
	case c.inbox <- wrapped:
	case <-c.done:
		return zero, ErrStopped
	}
	select {
	case v := <-result:
		return v, nil
	case <-c.done:
		return zero, ErrStopped
	}
}

// AddLink enrols sock under virtualIP. The socket must already be a UDP
// socket bound to its uplink route and connected to the server. On
// success (added=true) the Core owns the socket and will close it
// exactly once: on Zombie expiry, when a zombie is replaced by a new
// link with the same label, when a read error fails the link, or on
// Stop. On rejection the caller keeps
// ownership. A duplicate, non-zombie virtual-IP is rejected; a zombie
// with the same label is replaced.
func (c *Core) AddLink(sock link.Socket, virtualIP string, weight int, transport link.Transport) (added bool, err error) {
	return call(c, func() bool {
		return c.addLinkLocked(sock, virtualIP, weight, transport)
	})
}

func (c *Core) addLinkLocked(sock link.Socket, virtualIP string, weight int, transport link.Transport) bool {
	if existing, ok := c.links[virtualIP]; ok {
		if existing.State() != link.Zombie {
			return false
		}
		existing.Sock.Close()
		c.removeFromOrderLocked(virtualIP)
		delete(c.links, virtualIP)
	}

	l := link.New(virtualIP, transport, weight, sock, c.Log)
	c.links[virtualIP] = l
	c.order = append(c.order, virtualIP)
	go readLinkLoop(l, c.linkRx, c.done)

	l.SetState(link.RegisteringReg1)
	c.sendReg1(l)
	return true
}

func (c *Core) removeFromOrderLocked(virtualIP string) {
	for i, vip := range c.order {
		if vip == virtualIP {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// RemoveLink marks virtualIP's link Zombie, refusing when that would
// leave zero Connected non-zombie links.
func (c *Core) RemoveLink(virtualIP string) (removed bool, err error) {
	type result struct {
		removed bool
		err     error
	}
	r, callErr := call(c, func() result {
		removed, err := c.removeLinkLocked(virtualIP, time.Now())
		return result{removed, err}
	})
	if callErr != nil {
		return false, callErr
	}
	return r.removed, r.err
}

func (c *Core) removeLinkLocked(virtualIP string, now time.Time) (bool, error) {
	l, ok := c.links[virtualIP]
	if !ok {
		return false, ErrUnknownLink
	}

	wasConnected := l.State() == link.Connected
	connectedCount := c.countConnectedNonZombieLocked()
	if wasConnected && connectedCount <= 1 {
		return false, ErrWouldOrphan
	}

	l.MarkZombie(now)

	if wasConnected && connectedCount == 2 {
		for _, vip := range c.order {
			other := c.links[vip]
			if other != l && other.State() == link.Connected {
				other.ClearInflight()
				other.ResetWindow()
			}
		}
	}

	frame := codec.BuildKeepalive(uint64(now.UnixMilli()))
	for _, vip := range c.order {
		other := c.links[vip]
		if other.State() == link.Connected {
			c.write(other, frame)
		}
	}
	return true, nil
}

// RefreshAllLinks moves every non-zombie link to Disconnected, clears
// its in-flight set, resets its window, and touches last_activity so
// housekeeping re-emits REG1 within one tick.
func (c *Core) RefreshAllLinks() error {
	_, err := call(c, func() struct{} {
		now := time.Now()
		for _, vip := range c.order {
			l := c.links[vip]
			if l.State() == link.Zombie {
				continue
			}
			l.ClearInflight()
			l.ResetWindow()
			l.SetState(link.Disconnected)
			l.MarkReceived(now)
		}
		return struct{}{}
	})
	return err
}

// AllocateVirtualIP returns the first free label from the pool, or
// ok=false if the pool is exhausted.
func (c *Core) AllocateVirtualIP() (label string, ok bool, err error) {
	type result struct {
		label string
		ok    bool
	}
	r, err := call(c, func() result {
		label, ok := c.pool.Allocate()
		return result{label, ok}
	})
	if err != nil {
		return "", false, err
	}
	return r.label, r.ok, nil
}

// ReleaseVirtualIP returns label to the pool.
func (c *Core) ReleaseVirtualIP(label string) error {
	_, err := call(c, func() struct{} {
		c.pool.Release(label)
		return struct{}{}
	})
	return err
}

// ConnectedLinkCount returns the number of links currently in state
// Connected.
func (c *Core) ConnectedLinkCount() (uint32, error) {
	return call(c, func() uint32 {
		return uint32(c.countConnectedNonZombieLocked())
	})
}

// TotalDataPacketsSent returns the sum of data packets sent across every
// link — excluding REG1/REG2/KEEPALIVE control traffic, which
// housekeeping emits on every tick regardless of whether the encoder is
// producing anything — sampled by the supervisor to detect a zero send
// rate.
func (c *Core) TotalDataPacketsSent() (uint64, error) {
	return call(c, func() uint64 {
		var total uint64
		for _, vip := range c.order {
			total += c.links[vip].DataPacketsSent()
		}
		return total
	})
}
