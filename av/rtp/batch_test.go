package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchInsert(t *testing.T) {
	a := newTestPacket(t, 1, 0, 1, nil)
	b := newTestPacket(t, 2, 0, 1, nil)
	c := newTestPacket(t, 3, 0, 1, nil)

	batch := Batch{a, nil, b}
	batch = batch.Insert(c)
	assert.Len(t, batch, 3, "hole is reused")
	assert.Same(t, c, batch[1])

	d := newTestPacket(t, 4, 0, 1, nil)
	batch = batch.Insert(d)
	assert.Len(t, batch, 4, "batch grows when full")
	assert.Same(t, d, batch[3])
}

func TestBatchCountPacketsFind(t *testing.T) {
	a := newTestPacket(t, 1, 0, 7, nil)
	b := newTestPacket(t, 2, 0, 8, nil)
	batch := Batch{nil, a, nil, b}

	assert.Equal(t, 2, batch.Count())
	assert.Equal(t, []*RawPacket{a, b}, batch.Packets())

	found, ok := batch.Find(8, 2)
	assert.True(t, ok)
	assert.Same(t, b, found)

	_, ok = batch.Find(7, 2)
	assert.False(t, ok)
}
