package core

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/srtla-go/sender/codec"
	"github.com/srtla-go/sender/link"
	"github.com/srtla-go/sender/scheduler"
)

// handleEncoderDatagram implements tick step 3: remember the source as
// the current encoder endpoint, pick a link via the scheduler, and send.
func (c *Core) handleEncoderDatagram(dg encoderDatagram) {
	if dg.err != nil {
		c.Warn("listener read error", slog.String("err", dg.err.Error()))
		return
	}
	now := time.Now()
	if c.encoderAddr == nil {
		c.encoderAddr = dg.src
		if !c.sawEncoder {
			c.sawEncoder = true
			if c.onFirstEncoder != nil {
				c.onFirstEncoder()
			}
		}
	} else if !addrEqual(c.encoderAddr, dg.src) {
		c.Info("encoder endpoint changed", slog.String("old", c.encoderAddr.String()), slog.String("new", dg.src.String()))
		c.encoderAddr = dg.src
	}
	c.lastEncoder = now

	if len(dg.payload) == 0 {
		return
	}
	vip, ok := scheduler.Pick(c.order, c.links, now)
	if !ok {
		c.Debug("no link available, dropping outgoing packet")
		return
	}
	l := c.links[vip]
	seq := codec.SRTSequence(dg.payload)
	l.MarkSent(seq, now, len(dg.payload))
	if _, err := l.Sock.Write(dg.payload); err != nil {
		c.Warn("send failed", slog.String("virtual_ip", vip), slog.String("err", err.Error()))
		l.MarkSendFailure(now)
	}
}

// handleLinkDatagram routes one parsed datagram from a link socket by
// packet kind.
func (c *Core) handleLinkDatagram(dg linkDatagram) {
	l := dg.l
	if current, ok := c.links[l.VirtualIP]; !ok || current != l {
		return // stale event from a reader whose link was already replaced or removed.
	}

	if dg.err != nil {
		c.Warn("link read error, failing link", slog.String("virtual_ip", l.VirtualIP), slog.String("err", dg.err.Error()))
		l.SetState(link.Failed)
		c.forgetLink(l.VirtualIP, "read error")
		c.removeFromOrderLocked(l.VirtualIP)
		return
	}

	now := time.Now()
	l.MarkReceived(now)
	if len(dg.payload) == 0 {
		return
	}

	switch codec.Classify(dg.payload) {
	case codec.KindSRTLAReg2:
		c.handleReg2(l, dg.payload, now)
	case codec.KindSRTLAReg3:
		l.SetState(link.Connected)
	case codec.KindSRTLARegErr:
		c.Warn("REG_ERR from server", slog.String("virtual_ip", l.VirtualIP))
		if c.onRegErr != nil {
			c.onRegErr(l.VirtualIP)
		}
	case codec.KindSRTLAAck:
		var entries [codec.AckEntries]uint32
		if parsed, ok := codec.ParseSRTLAAck(dg.payload, entries); ok {
			for _, seq := range parsed {
				c.broadcastSRTLAAck(seq, now)
			}
		}
	case codec.KindSRTLAKeepalive:
		// last_received already stamped above; nothing else to do.
	case codec.KindSRTAck:
		if ackSeq, ok := codec.SRTAckSeq(dg.payload); ok {
			c.broadcastSRTAck(ackSeq)
		}
		c.forwardToEncoder(dg.payload)
	case codec.KindSRTNak:
		for _, seq := range codec.SRTNakExpand(dg.payload, nil) {
			c.broadcastSRTNak(seq)
		}
		c.forwardToEncoder(dg.payload)
	case codec.KindSRTShutdown:
		c.encoderAddr = nil
	case codec.KindSRTData, codec.KindSRTControlOther:
		c.forwardToEncoder(dg.payload)
	case codec.KindMalformed:
		// dropped; last_received was already stamped.
	}
}

// handleReg2 applies the boundary behavior: the state
// transition to RegisteringReg2 happens regardless of whether the
// server's id matches ours, but the group id is only overwritten, and
// REG2 only broadcast, on a match.
func (c *Core) handleReg2(l *link.Link, payload []byte, now time.Time) {
	serverID, ok := codec.ParseReg(payload)
	if !ok {
		return
	}
	l.SetState(link.RegisteringReg2)

	const matchLen = codec.GroupIDLen / 2
	if !bytes.Equal(serverID[:matchLen], c.groupID[:matchLen]) {
		return
	}
	c.groupID = serverID

	frame := codec.BuildReg2(&c.groupID)
	for _, vip := range c.order {
		other := c.links[vip]
		if other.State() == link.Zombie {
			continue
		}
		c.write(other, frame)
	}
}

func (c *Core) broadcastSRTAck(ackSeq uint32) {
	for _, vip := range c.order {
		if l := c.links[vip]; l.State() == link.Connected {
			l.HandleSRTAck(ackSeq)
		}
	}
}

func (c *Core) broadcastSRTNak(seq uint32) {
	for _, vip := range c.order {
		if l := c.links[vip]; l.State() == link.Connected {
			l.HandleSRTNak(seq)
		}
	}
}

func (c *Core) broadcastSRTLAAck(seq uint32, now time.Time) {
	for _, vip := range c.order {
		if l := c.links[vip]; l.State() == link.Connected {
			l.HandleSRTLAAck(seq, now)
		}
	}
}

func (c *Core) forwardToEncoder(payload []byte) {
	if c.encoderAddr == nil {
		return
	}
	if _, err := c.listener.WriteToUDP(payload, c.encoderAddr); err != nil {
		c.Warn("forward to encoder failed", slog.String("err", err.Error()))
	}
}
