package codec

// SeqLTE reports whether a precedes or equals b in the wrap-aware 31-bit
// SRT sequence space, i.e. a <= b.
//
// SRT sequence numbers occupy only the low 31 bits of their wire field
// (the top bit distinguishes control from data packets), so the wrap
// point sits at 2^31, not at 2^32. The comparison takes the 31-bit
// difference b-a and sign-extends it from bit 30, grounded on the
// classic TCP signed-delta idiom (diff := int32(b-a); diff >= 0 means a
// has not passed b) adapted to a 31-bit rather than a full 32-bit space.
func SeqLTE(a, b uint32) bool {
	return seqDiff(a, b) >= 0
}

// SeqLT reports whether a strictly precedes b in the wrap-aware sequence
// space.
func SeqLT(a, b uint32) bool {
	return seqDiff(a, b) > 0
}

// seqDiff returns b-a as a signed value in the 31-bit sequence space,
// positive when a precedes b and negative when b precedes a.
func seqDiff(a, b uint32) int32 {
	return int32(uint32(b-a)<<1) >> 1
}
