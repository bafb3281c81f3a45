package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestClassify(t *testing.T) {
	var groupID [GroupIDLen]byte
	assert.Equal(t, KindSRTLAReg1, Classify(BuildReg1(&groupID)))
	assert.Equal(t, KindSRTLAReg2, Classify(BuildReg2(&groupID)))
	assert.Equal(t, KindSRTLAKeepalive, Classify(BuildKeepalive(1234)))

	reg3 := make([]byte, 2)
	binary.BigEndian.PutUint16(reg3, srtlaTypeReg3)
	assert.Equal(t, KindSRTLAReg3, Classify(reg3))

	regErr := make([]byte, 2)
	binary.BigEndian.PutUint16(regErr, srtlaTypeRegErr)
	assert.Equal(t, KindSRTLARegErr, Classify(regErr))

	ack := make([]byte, AckPayloadLen)
	binary.BigEndian.PutUint16(ack, 0x9100)
	assert.Equal(t, KindSRTLAAck, Classify(ack))

	data := make([]byte, SRTMinLen)
	binary.BigEndian.PutUint32(data, 42) // top bit clear: data, seq=42
	assert.Equal(t, KindSRTData, Classify(data))
	assert.Equal(t, uint32(42), SRTSequence(data))

	srtAck := make([]byte, SRTMinLen+4)
	binary.BigEndian.PutUint32(srtAck, 0x8000_0000|uint32(srtSubtypeACK)<<16)
	binary.BigEndian.PutUint32(srtAck[16:], 999)
	assert.Equal(t, KindSRTAck, Classify(srtAck))
	seq, ok := SRTAckSeq(srtAck)
	require.True(t, ok)
	assert.Equal(t, uint32(999), seq)

	srtNak := make([]byte, SRTMinLen)
	binary.BigEndian.PutUint32(srtNak, 0x8000_0000|uint32(srtSubtypeNAK)<<16)
	assert.Equal(t, KindSRTNak, Classify(srtNak))

	srtShutdown := make([]byte, SRTMinLen)
	binary.BigEndian.PutUint32(srtShutdown, 0x8000_0000|uint32(srtSubtypeShutdown)<<16)
	assert.Equal(t, KindSRTShutdown, Classify(srtShutdown))

	assert.Equal(t, KindMalformed, Classify(nil))
	assert.Equal(t, KindMalformed, Classify([]byte{0x91}))
}

func TestNakExpandSingleAndRange(t *testing.T) {
	body := make([]byte, srtNakOffset+8)
	binary.BigEndian.PutUint32(body[srtNakOffset:], 0x8000_0005) // range start=5
	binary.BigEndian.PutUint32(body[srtNakOffset+4:], 8)         // range end=8
	got := SRTNakExpand(body, nil)
	assert.Equal(t, []uint32{5, 6, 7, 8}, got)

	single := make([]byte, srtNakOffset+4)
	binary.BigEndian.PutUint32(single[srtNakOffset:], 42)
	assert.Equal(t, []uint32{42}, SRTNakExpand(single, nil))
}

func TestRegRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var groupID [GroupIDLen]byte
		copy(groupID[:], rapid.SliceOfN(rapid.Byte(), GroupIDLen, GroupIDLen).Draw(t, "id"))

		built := BuildReg1(&groupID)
		require.Equal(t, KindSRTLAReg1, Classify(built))
		parsed, ok := ParseReg(built)
		require.True(t, ok)
		assert.Equal(t, groupID, parsed)
	})
}

func TestKeepaliveRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ts := rapid.Uint64().Draw(t, "ts")
		built := BuildKeepalive(ts)
		require.Equal(t, KindSRTLAKeepalive, Classify(built))
		got, ok := ParseKeepalive(built)
		require.True(t, ok)
		assert.Equal(t, ts, got)
	})
}

func TestNakExpandRangeLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Uint32Range(0, 1<<20).Draw(t, "start")
		length := rapid.Uint32Range(0, 200).Draw(t, "length")
		end := start + length

		body := make([]byte, srtNakOffset+8)
		binary.BigEndian.PutUint32(body[srtNakOffset:], 0x8000_0000|start)
		binary.BigEndian.PutUint32(body[srtNakOffset+4:], end)

		got := SRTNakExpand(body, nil)
		require.Len(t, got, int(length)+1)
		for i, v := range got {
			assert.Equal(t, start+uint32(i), v)
		}
	})
}

func TestClassifyIsTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		buf := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "buf")
		assert.NotPanics(t, func() {
			_ = Classify(buf)
		})
	})
}
