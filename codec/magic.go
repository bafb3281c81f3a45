// Package codec parses and builds the wire frames exchanged between the
// SRTLA sender and the SRT encoder / SRTLA server: SRT packet headers
// (inspected only enough to classify and extract sequence numbers) and
// SRTLA's own registration/keepalive/ack frames.
//
// The magic numbers below resolve the "exact numerical value of every
// SRTLA magic is scattered across the source" open question by fixing a
// single authoritative table, matching the reference SRTLA receiver
// found alongside this codebase (see DESIGN.md).
package codec

// SRTLA frame types. The top nibble 0x9 marks a frame as SRTLA rather
// than SRT; REG1/REG2/REG3/REG_ERR/KEEPALIVE/ACK are the only SRTLA
// frame kinds this sender emits or must recognize.
const (
	srtlaTypeKeepalive uint16 = 0x9000
	srtlaTypeACK       uint16 = 0x9100
	srtlaTypeReg1      uint16 = 0x9200
	srtlaTypeReg2      uint16 = 0x9201
	srtlaTypeReg3      uint16 = 0x9202
	srtlaTypeRegErr    uint16 = 0x9210

	srtlaTypeMask uint16 = 0xF000
	srtlaTypeTag  uint16 = 0x9000
)

// SRT control subtypes, carried in the low bits of the first 16-bit word
// once the control bit (the top bit of that word) is set.
const (
	srtSubtypeACK      uint16 = 2
	srtSubtypeNAK      uint16 = 3
	srtSubtypeShutdown uint16 = 5
)

// GroupIDLen is the fixed size of the SRTLA group identity (srtla_id).
const GroupIDLen = 256

// RegPayloadLen is the length of a REG1/REG2 frame: 2-byte type plus the
// full group id.
const RegPayloadLen = 2 + GroupIDLen

// AckEntries is the number of sequence numbers carried by one SRTLA ACK
// frame.
const AckEntries = 10

// AckPayloadLen is the fixed length of an SRTLA ACK frame: 4-byte header
// (type in the first 2 bytes, 2 bytes unused/reserved) plus ten 4-byte
// sequence numbers.
const AckPayloadLen = 4 + AckEntries*4

// KeepaliveLen is the length of a KEEPALIVE frame: 2-byte type plus an
// 8-byte big-endian monotonic millisecond timestamp.
const KeepaliveLen = 2 + 8

// SRTMinLen is the minimum length of a well-formed SRT header.
const SRTMinLen = 16

// srtAckSeqOffset is the byte offset of the acknowledged sequence number
// within an SRT ACK control packet.
const srtAckSeqOffset = 16

// srtNakOffset is the byte offset of the first loss-report entry within
// an SRT NAK control packet.
const srtNakOffset = 16
