package link

import (
	"io"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/srtla-go/sender/codec"
	"github.com/srtla-go/sender/internal"
)

// Window scaling and bounds, per srtla_com.c's congestion-window
// constants (srtla_id's register/ack handling).
const (
	WindowMultiplier = 1000
	WindowDefault    = 20 * WindowMultiplier
	WindowMin        = 1 * WindowMultiplier
	WindowMax        = 60 * WindowMultiplier

	nakPenalty    = 100
	ackIncrement  = 1
	ackCongestion = 29

	timeoutIdle    = 4 * time.Second
	zombieLifetime = 15 * time.Second

	rttSmoothedAlpha = 0.125
	rttFastAlpha     = 0.25
	rttSeed          = 100 * time.Millisecond
)

// Socket is the minimal surface the core needs from a link's transport:
// a reader/writer/closer already bound to the uplink and connected to
// the server. Ownership passes to the core on AddLink success; the core
// closes it exactly once (see core.Core.AddLink); Link never closes it.
type Socket interface {
	io.Reader
	io.Writer
	io.Closer
}

// inflightEntry records what mark_sent needs to resolve an in-flight
// sequence later: its send time (for RTT) and its byte length (for
// counters, not currently re-read but kept for parity with stats).
type inflightEntry struct {
	sentAt time.Time
	bytes  int
}

// Link is one enrolled uplink: identity, socket, registration state,
// congestion window, in-flight set and RTT estimators. All fields are
// only ever mutated from the core's single loop goroutine; Link itself
// holds no lock.
type Link struct {
	internal.Logger

	// Identity.
	VirtualIP string
	Transport Transport
	// Weight is carried but not read by the scheduler; see
	// SPEC_FULL.md §9 open question 3.
	Weight int

	// CorrelationID is a short opaque id, generated per Link, that tells
	// apart links that have reused the same virtual-IP label over time.
	// It is never sent on the wire or read by the scheduler;
	// internal.SlogLink renders it as a log attr, but no log call in
	// this module passes it.
	CorrelationID xid.ID

	Sock Socket

	state State

	window   int
	inflight map[uint32]inflightEntry

	lastSent        time.Time
	lastReceived    time.Time
	zombieEnteredAt time.Time

	rttSmoothed time.Duration
	rttFast     time.Duration

	bytesSent       uint64
	packetsSent     uint64
	dataPacketsSent uint64
	ackCount        uint64
	nakCount        uint64
}

// New constructs a Link in state Disconnected with the default window,
// ready to have REG1 sent on it.
func New(virtualIP string, transport Transport, weight int, sock Socket, log *slog.Logger) *Link {
	return &Link{
		Logger:        internal.Logger{Log: log},
		VirtualIP:     virtualIP,
		Transport:     transport,
		Weight:        weight,
		CorrelationID: xid.New(),
		Sock:          sock,
		state:         Disconnected,
		window:        WindowDefault,
		inflight:      make(map[uint32]inflightEntry),
		rttSmoothed:   rttSeed,
		rttFast:       rttSeed,
	}
}

// State returns the current registration state.
func (l *Link) State() State { return l.state }

// Window returns the current congestion window, scaled by WindowMultiplier.
func (l *Link) Window() int { return l.window }

// InFlightCount returns the number of unresolved sequences on this link.
func (l *Link) InFlightCount() int { return len(l.inflight) }

// AckCount, NakCount, BytesSent and PacketsSent return the link's
// lifetime counters, used by the stats callback and the metrics collector.
func (l *Link) AckCount() uint64    { return l.ackCount }
func (l *Link) NakCount() uint64    { return l.nakCount }
func (l *Link) BytesSent() uint64   { return l.bytesSent }
func (l *Link) PacketsSent() uint64 { return l.packetsSent }

// DataPacketsSent returns the count of SRT data/control payloads handed
// to MarkSent only — unlike PacketsSent, it excludes the REG1/REG2/
// KEEPALIVE frames MarkControlSent accounts for, so it stops increasing
// whenever the encoder stops sending even while housekeeping keeps a
// link's registration alive.
func (l *Link) DataPacketsSent() uint64 { return l.dataPacketsSent }

// LastActivity returns the max of last_sent and last_received.
func (l *Link) LastActivity() time.Time {
	if l.lastSent.After(l.lastReceived) {
		return l.lastSent
	}
	return l.lastReceived
}

// SetState forces the registration state, used by the core's
// registration handling table and housekeeping. It does not touch any
// other field; callers that need the Zombie-entry stamp use MarkZombie.
func (l *Link) SetState(s State) { l.state = s }

// MarkReceived stamps last_received = now, used for every classified
// inbound frame regardless of kind.
func (l *Link) MarkReceived(now time.Time) { l.lastReceived = now }

// MarkSent inserts seq into the in-flight set, bumps the send counters
// and stamps last_sent. It never touches the window.
func (l *Link) MarkSent(seq uint32, now time.Time, bytes int) {
	l.inflight[seq] = inflightEntry{sentAt: now, bytes: bytes}
	l.lastSent = now
	l.bytesSent += uint64(bytes)
	l.packetsSent++
	l.dataPacketsSent++
}

// MarkControlSent stamps last_sent and bumps the send counters for a
// protocol control frame (REG1/REG2/KEEPALIVE) that carries no SRT
// sequence number and is therefore never tracked in the in-flight set;
// a successful send still counts as activity.
func (l *Link) MarkControlSent(now time.Time, bytes int) {
	l.lastSent = now
	l.bytesSent += uint64(bytes)
	l.packetsSent++
}

// MarkSendFailure stamps last_sent/last_received into the past so the
// next housekeeping tick treats this link as timed out rather than
// leaving a send-failing socket marked healthy. It does not remove the
// link or its in-flight set.
func (l *Link) MarkSendFailure(now time.Time) {
	stale := now.Add(-timeoutIdle - time.Second)
	l.lastSent = stale
	l.lastReceived = stale
}

// HandleSRTAck removes every in-flight sequence s with s <= ackSeq
// (wrap-aware, per codec.SeqLTE). It does not touch the window.
// Callers broadcast this to every Connected link for each observed SRT
// ACK.
func (l *Link) HandleSRTAck(ackSeq uint32) {
	for seq := range l.inflight {
		if codec.SeqLTE(seq, ackSeq) {
			delete(l.inflight, seq)
		}
	}
	l.ackCount++
}

// HandleSRTNak removes seq from the in-flight set if present and drops
// the window by a fixed penalty, floored at WindowMin. A seq not in the
// in-flight set is ignored.
func (l *Link) HandleSRTNak(seq uint32) {
	if _, ok := l.inflight[seq]; !ok {
		return
	}
	delete(l.inflight, seq)
	l.nakCount++
	l.window -= nakPenalty
	if l.window < WindowMin {
		l.window = WindowMin
	}
}

// HandleSRTLAAck resolves seq if it is in this link's in-flight set,
// updating RTT estimators from its round-trip time, and always grows
// the window: +ackCongestion when the link was congested
// (|in_flight|*WindowMultiplier > window before removal), else
// +ackIncrement, clamped at WindowMax.
func (l *Link) HandleSRTLAAck(seq uint32, now time.Time) {
	congested := len(l.inflight)*WindowMultiplier > l.window
	if entry, ok := l.inflight[seq]; ok {
		delete(l.inflight, seq)
		l.updateRTT(now.Sub(entry.sentAt))
	}
	if congested {
		l.window += ackCongestion
	} else {
		l.window += ackIncrement
	}
	if l.window > WindowMax {
		l.window = WindowMax
	}
}

func (l *Link) updateRTT(sample time.Duration) {
	if sample < 0 {
		return
	}
	l.rttSmoothed = ewma(l.rttSmoothed, sample, rttSmoothedAlpha)
	l.rttFast = ewma(l.rttFast, sample, rttFastAlpha)
}

func ewma(prev, sample time.Duration, alpha float64) time.Duration {
	return time.Duration((1-alpha)*float64(prev) + alpha*float64(sample))
}

// RTTSmoothed and RTTFast expose the two RTT estimators for stats and tests.
func (l *Link) RTTSmoothed() time.Duration { return l.rttSmoothed }
func (l *Link) RTTFast() time.Duration     { return l.rttFast }

// Score is window/(in_flight+1) when Connected and not timed out, else
// zero. The scheduler picks the highest score across the link table.
func (l *Link) Score(now time.Time) float64 {
	if l.state != Connected || l.IsTimedOut(now) {
		return 0
	}
	return float64(l.window) / float64(len(l.inflight)+1)
}

// IsTimedOut reports whether the link has been silent (no send, no
// receive) for longer than the idle timeout.
func (l *Link) IsTimedOut(now time.Time) bool {
	return now.Sub(l.LastActivity()) > timeoutIdle
}

// MarkZombie transitions Connected -> Zombie and stamps the entry time.
func (l *Link) MarkZombie(now time.Time) {
	l.state = Zombie
	l.zombieEnteredAt = now
}

// IsZombieExpired reports whether a Zombie link has outlived its
// receive-only grace period.
func (l *Link) IsZombieExpired(now time.Time) bool {
	return l.state == Zombie && now.Sub(l.zombieEnteredAt) > zombieLifetime
}

// ClearInflight forgets every in-flight sequence without touching the
// window. Used by ResetWindow's callers and the removal safety rule
// independently of each other.
func (l *Link) ClearInflight() {
	for seq := range l.inflight {
		delete(l.inflight, seq)
	}
}

// ResetWindow restores the default window. Combined with ClearInflight
// by refresh_all_links and the single-survivor removal rule.
func (l *Link) ResetWindow() {
	l.window = WindowDefault
}

// Stats is a point-in-time snapshot handed to the stats callback and the
// metrics collector once per second.
type Stats struct {
	VirtualIP   string
	Transport   Transport
	State       State
	Window      int
	InFlight    int
	NakCount    uint64
	BytesSent   uint64
	PacketsSent uint64
	Score       float64
}

// Snapshot builds a Stats value for this link at now.
func (l *Link) Snapshot(now time.Time) Stats {
	return Stats{
		VirtualIP:   l.VirtualIP,
		Transport:   l.Transport,
		State:       l.state,
		Window:      l.window,
		InFlight:    len(l.inflight),
		NakCount:    l.nakCount,
		BytesSent:   l.bytesSent,
		PacketsSent: l.packetsSent,
		Score:       l.Score(now),
	}
}
