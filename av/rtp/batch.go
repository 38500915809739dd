package rtp

// Batch is an ordered group of packets handed through the media pipeline in
// one call. Entries may be nil; a nil entry is a hole left by a packet that
// was consumed earlier in the pipeline.
type Batch []*RawPacket

// Insert places pkt in the first hole, or appends it when the batch has none.
// The possibly grown batch is returned.
func (b Batch) Insert(pkt *RawPacket) Batch {
	for i := range b {
		if b[i] == nil {
			b[i] = pkt
			return b
		}
	}
	return append(b, pkt)
}

// Count returns the number of non-nil packets.
func (b Batch) Count() int {
	n := 0
	for _, pkt := range b {
		if pkt != nil {
			n++
		}
	}
	return n
}

// Packets returns the non-nil packets in order.
func (b Batch) Packets() []*RawPacket {
	out := make([]*RawPacket, 0, len(b))
	for _, pkt := range b {
		if pkt != nil {
			out = append(out, pkt)
		}
	}
	return out
}

// Find returns the first packet with the given SSRC and sequence number.
func (b Batch) Find(ssrc uint32, seq uint16) (*RawPacket, bool) {
	for _, pkt := range b {
		if pkt != nil && pkt.SSRC() == ssrc && pkt.SequenceNumber() == seq {
			return pkt, true
		}
	}
	return nil, false
}
