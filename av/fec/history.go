package fec

import (
	"slices"

	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/opd-ai/toxfec/limits"
)

// History is a fixed-capacity store of packets keyed by sequence number.
//
// Keys are ordered with wraparound-aware comparison. Once the capacity is
// reached, storing a new key evicts the oldest one. History owns every packet
// buffer it holds: Put copies the caller's packet into a pooled buffer, and
// eviction or removal hands the buffer back to the pool instead of dropping it.
//
// History is not synchronized; it is owned by exactly one receiver.
type History struct {
	capacity int
	entries  map[uint16]*rtp.RawPacket
	order    []uint16 // oldest first
	free     []*rtp.RawPacket
}

// NewHistory creates a history retaining at most capacity packets.
// A non-positive capacity is treated as one.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		capacity: capacity,
		entries:  make(map[uint16]*rtp.RawPacket, capacity),
		order:    make([]uint16, 0, capacity),
		free:     make([]*rtp.RawPacket, 0, capacity),
	}
}

// Capacity returns the maximum number of retained packets.
func (h *History) Capacity() int {
	return h.capacity
}

// Len returns the number of retained packets.
func (h *History) Len() int {
	return len(h.order)
}

// Put stores a copy of pkt under seq and returns the stored packet.
//
// An existing entry for seq is overwritten in place. When the history is
// full the oldest entry is evicted and its buffer reused. If seq itself is
// older than everything retained in a full history, it would be the entry
// evicted, so nothing is stored and nil is returned.
func (h *History) Put(seq uint16, pkt *rtp.RawPacket) *rtp.RawPacket {
	if stored, ok := h.entries[seq]; ok {
		stored.CopyFrom(pkt)
		return stored
	}

	var slot *rtp.RawPacket
	if len(h.order) >= h.capacity {
		oldest := h.order[0]
		if rtp.IsSequenceOlder(seq, oldest) {
			return nil
		}
		slot = h.entries[oldest]
		delete(h.entries, oldest)
		h.order = slices.Delete(h.order, 0, 1)
	} else {
		slot = h.allocate()
	}

	slot.CopyFrom(pkt)
	h.entries[seq] = slot
	idx, _ := slices.BinarySearchFunc(h.order, seq, rtp.CompareSequence)
	h.order = slices.Insert(h.order, idx, seq)
	return slot
}

// Get returns the packet stored under seq.
func (h *History) Get(seq uint16) (*rtp.RawPacket, bool) {
	pkt, ok := h.entries[seq]
	return pkt, ok
}

// Contains reports whether seq is retained.
func (h *History) Contains(seq uint16) bool {
	_, ok := h.entries[seq]
	return ok
}

// Remove drops seq and returns its buffer to the pool. The packet returned
// earlier by Put or Get must not be used afterwards.
func (h *History) Remove(seq uint16) bool {
	slot, ok := h.entries[seq]
	if !ok {
		return false
	}
	delete(h.entries, seq)
	if idx, found := slices.BinarySearchFunc(h.order, seq, rtp.CompareSequence); found {
		h.order = slices.Delete(h.order, idx, idx+1)
	} else if idx := slices.Index(h.order, seq); idx >= 0 {
		h.order = slices.Delete(h.order, idx, idx+1)
	}
	h.release(slot)
	return true
}

// Keys returns the retained sequence numbers, oldest first. The slice is a copy.
func (h *History) Keys() []uint16 {
	return slices.Clone(h.order)
}

// Oldest returns the oldest retained sequence number.
func (h *History) Oldest() (uint16, bool) {
	if len(h.order) == 0 {
		return 0, false
	}
	return h.order[0], true
}

// Clear drops every entry and releases the buffer pool.
func (h *History) Clear() {
	h.entries = make(map[uint16]*rtp.RawPacket, h.capacity)
	h.order = h.order[:0]
	h.free = h.free[:0]
}

func (h *History) allocate() *rtp.RawPacket {
	if n := len(h.free); n > 0 {
		slot := h.free[n-1]
		h.free = h.free[:n-1]
		return slot
	}
	return rtp.NewRawPacket(make([]byte, limits.MaxPacketSize), 0, 0)
}

func (h *History) release(slot *rtp.RawPacket) {
	slot.SetLength(0)
	if len(h.free) < h.capacity {
		h.free = append(h.free, slot)
	}
}
