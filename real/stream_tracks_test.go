package real

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTrackRegistryResolve(t *testing.T) {
	r := NewStreamTrackRegistry()
	require.NoError(t, r.AddFECGroup(1111, 2222))
	require.NoError(t, r.AddFECGroup(1111, 2222), "same pair twice")
	require.NoError(t, r.AddMediaStream(3333))

	tests := []struct {
		name      string
		ssrc      uint32
		want      uint32
		wantFound bool
	}{
		{name: "protection stream", ssrc: 2222, want: 1111, wantFound: true},
		{name: "media stream", ssrc: 1111, want: 1111, wantFound: true},
		{name: "media without protection", ssrc: 3333, want: 3333, wantFound: true},
		{name: "unknown", ssrc: 4444, want: 0, wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.PrimarySSRC(tt.ssrc)
			assert.Equal(t, tt.wantFound, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 3, r.StreamCount())
}

func TestStreamTrackRegistryRejects(t *testing.T) {
	r := NewStreamTrackRegistry()
	require.NoError(t, r.AddFECGroup(1, 2))

	assert.ErrorIs(t, r.AddFECGroup(0, 5), ErrInvalidSSRC)
	assert.ErrorIs(t, r.AddFECGroup(5, 5), ErrInvalidSSRC)
	assert.ErrorIs(t, r.AddFECGroup(3, 2), ErrConflictingGroup, "2 already protects 1")
	assert.ErrorIs(t, r.AddFECGroup(4, 1), ErrConflictingGroup, "1 is media")
	assert.ErrorIs(t, r.AddFECGroup(2, 9), ErrConflictingGroup, "2 is protection")
	assert.ErrorIs(t, r.AddMediaStream(2), ErrConflictingGroup)
	assert.ErrorIs(t, r.AddMediaStream(0), ErrInvalidSSRC)
}

func TestStreamTrackRegistryRemove(t *testing.T) {
	r := NewStreamTrackRegistry()
	require.NoError(t, r.AddFECGroup(10, 20))
	require.NoError(t, r.AddFECGroup(30, 40))

	r.RemoveStream(40)
	_, ok := r.PrimarySSRC(40)
	assert.False(t, ok)
	_, ok = r.PrimarySSRC(30)
	assert.True(t, ok)

	r.RemoveStream(10)
	_, ok = r.PrimarySSRC(20)
	assert.False(t, ok, "removing media drops its protection stream")
	assert.Equal(t, 1, r.StreamCount())
}

func TestParseSSRCGroup(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantMedia uint32
		wantFEC   uint32
		wantErr   bool
	}{
		{name: "bare", input: "FEC-FR 1111 2222", wantMedia: 1111, wantFEC: 2222},
		{name: "attribute", input: "a=ssrc-group:FEC-FR 4294967295 7", wantMedia: 4294967295, wantFEC: 7},
		{name: "wrong semantics", input: "FID 1 2", wantErr: true},
		{name: "missing ssrc", input: "FEC-FR 1", wantErr: true},
		{name: "not a number", input: "FEC-FR 1 x", wantErr: true},
		{name: "overflow", input: "FEC-FR 1 4294967296", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media, fec, err := ParseSSRCGroup(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGroup)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMedia, media)
			assert.Equal(t, tt.wantFEC, fec)
		})
	}
}

func TestStreamTrackRegistryConcurrentAccess(t *testing.T) {
	r := NewStreamTrackRegistry()
	var wg sync.WaitGroup
	for i := uint32(1); i <= 20; i++ {
		wg.Add(2)
		go func(i uint32) {
			defer wg.Done()
			_ = r.AddFECGroup(i, i+1000)
		}(i)
		go func(i uint32) {
			defer wg.Done()
			r.PrimarySSRC(i + 1000)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 40, r.StreamCount())
}
