package codec

import "encoding/binary"

// PacketKind classifies a single UDP datagram as seen on a link socket
// or the encoder-facing listener.
type PacketKind uint8

const (
	KindMalformed PacketKind = iota
	KindSRTData
	KindSRTControlOther
	KindSRTAck
	KindSRTNak
	KindSRTShutdown
	KindSRTLAReg1
	KindSRTLAReg2
	KindSRTLAReg3
	KindSRTLARegErr
	KindSRTLAKeepalive
	KindSRTLAAck
)

// String names a PacketKind for logging.
func (k PacketKind) String() string {
	switch k {
	case KindSRTData:
		return "srt-data"
	case KindSRTControlOther:
		return "srt-control"
	case KindSRTAck:
		return "srt-ack"
	case KindSRTNak:
		return "srt-nak"
	case KindSRTShutdown:
		return "srt-shutdown"
	case KindSRTLAReg1:
		return "srtla-reg1"
	case KindSRTLAReg2:
		return "srtla-reg2"
	case KindSRTLAReg3:
		return "srtla-reg3"
	case KindSRTLARegErr:
		return "srtla-reg-err"
	case KindSRTLAKeepalive:
		return "srtla-keepalive"
	case KindSRTLAAck:
		return "srtla-ack"
	default:
		return "malformed"
	}
}

// Classify inspects the top bits of the first two bytes of pkt and
// returns its PacketKind. Frames shorter than 2 bytes are Malformed.
func Classify(pkt []byte) PacketKind {
	if len(pkt) < 2 {
		return KindMalformed
	}
	word16 := binary.BigEndian.Uint16(pkt[:2])
	if word16&srtlaTypeMask == srtlaTypeTag {
		switch word16 {
		case srtlaTypeReg1:
			return KindSRTLAReg1
		case srtlaTypeReg2:
			return KindSRTLAReg2
		case srtlaTypeReg3:
			return KindSRTLAReg3
		case srtlaTypeRegErr:
			return KindSRTLARegErr
		case srtlaTypeKeepalive:
			return KindSRTLAKeepalive
		case srtlaTypeACK:
			return KindSRTLAAck
		default:
			return KindMalformed
		}
	}

	if len(pkt) < 4 {
		return KindMalformed
	}
	word32 := binary.BigEndian.Uint32(pkt[:4])
	if word32&0x8000_0000 == 0 {
		return KindSRTData
	}
	switch uint16(word32>>16) & 0x7FFF {
	case srtSubtypeACK:
		return KindSRTAck
	case srtSubtypeNAK:
		return KindSRTNak
	case srtSubtypeShutdown:
		return KindSRTShutdown
	default:
		return KindSRTControlOther
	}
}

// SRTSequence returns the 31-bit sequence number of an SRT data packet
// (the low bits of the first 32-bit word). Callers must check Classify
// returns KindSRTData first; behavior on a shorter buffer is to return 0.
func SRTSequence(pkt []byte) uint32 {
	if len(pkt) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(pkt[:4]) & 0x7FFF_FFFF
}

// SRTAckSeq returns the acknowledged sequence number of an SRT ACK
// control packet, read from byte offset 16.
func SRTAckSeq(pkt []byte) (seq uint32, ok bool) {
	if len(pkt) < srtAckSeqOffset+4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(pkt[srtAckSeqOffset:]) & 0x7FFF_FFFF, true
}

// SRTNakExpand walks the loss-report entries of an SRT NAK control
// packet starting at byte offset 16 and appends every lost sequence
// number to dst, returning the extended slice.
//
// Each 4-byte entry either stands for a single lost sequence (top bit
// clear) or, when its top bit is set, is the inclusive start of a range
// whose inclusive end is given by the very next entry (top bit clear on
// the end entry, per the wire format). Sequence values are treated as
// opaque 31-bit identities here; range expansion walks low-to-high in
// the order the entries describe without wrap correction, matching
// the SRT NAK control packet layout.
func SRTNakExpand(pkt []byte, dst []uint32) []uint32 {
	if len(pkt) <= srtNakOffset {
		return dst
	}
	body := pkt[srtNakOffset:]
	for i := 0; i+4 <= len(body); {
		entry := binary.BigEndian.Uint32(body[i:])
		if entry&0x8000_0000 == 0 {
			dst = append(dst, entry)
			i += 4
			continue
		}
		if i+8 > len(body) {
			break // malformed: range start with no end entry.
		}
		start := entry & 0x7FFF_FFFF
		end := binary.BigEndian.Uint32(body[i+4:]) & 0x7FFF_FFFF
		for s := start; s <= end; s++ {
			dst = append(dst, s)
			if s == end {
				break // guards against end == math.MaxUint32 wraparound.
			}
		}
		i += 8
	}
	return dst
}

// BuildReg1 constructs a REG1 frame: 2-byte type followed by the full
// group id.
func BuildReg1(groupID *[GroupIDLen]byte) []byte {
	return buildRegFrame(srtlaTypeReg1, groupID)
}

// BuildReg2 constructs a REG2 frame carrying the (now server-completed)
// group id, used by the sender to propagate a newly completed group id
// to the rest of its own links.
func BuildReg2(groupID *[GroupIDLen]byte) []byte {
	return buildRegFrame(srtlaTypeReg2, groupID)
}

func buildRegFrame(typ uint16, groupID *[GroupIDLen]byte) []byte {
	out := make([]byte, RegPayloadLen)
	binary.BigEndian.PutUint16(out[:2], typ)
	copy(out[2:], groupID[:])
	return out
}

// BuildKeepalive constructs a KEEPALIVE frame carrying the given
// monotonic-millisecond timestamp.
func BuildKeepalive(monotonicMillis uint64) []byte {
	out := make([]byte, KeepaliveLen)
	binary.BigEndian.PutUint16(out[:2], srtlaTypeKeepalive)
	binary.BigEndian.PutUint64(out[2:], monotonicMillis)
	return out
}

// ParseReg parses a REG1/REG2 frame, returning the carried group id.
// ok is false if pkt is not exactly RegPayloadLen bytes.
func ParseReg(pkt []byte) (groupID [GroupIDLen]byte, ok bool) {
	if len(pkt) != RegPayloadLen {
		return groupID, false
	}
	copy(groupID[:], pkt[2:])
	return groupID, true
}

// ParseKeepalive parses a KEEPALIVE frame, returning the carried
// timestamp. ok is false if pkt is not exactly KeepaliveLen bytes.
func ParseKeepalive(pkt []byte) (monotonicMillis uint64, ok bool) {
	if len(pkt) != KeepaliveLen {
		return 0, false
	}
	return binary.BigEndian.Uint64(pkt[2:]), true
}

// ParseSRTLAAck parses the ten sequence numbers carried by an SRTLA ACK
// frame. ok is false if pkt is not exactly AckPayloadLen bytes.
func ParseSRTLAAck(pkt []byte, dst [AckEntries]uint32) ([AckEntries]uint32, bool) {
	if len(pkt) != AckPayloadLen {
		return dst, false
	}
	for i := 0; i < AckEntries; i++ {
		dst[i] = binary.BigEndian.Uint32(pkt[4+i*4:]) & 0x7FFF_FFFF
	}
	return dst, true
}
