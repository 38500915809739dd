package real

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/opd-ai/toxfec/interfaces"
	"github.com/sirupsen/logrus"
)

// FECGroupSemantics is the ssrc-group semantics of a media stream and its
// FlexFEC protection stream (RFC 5956).
const FECGroupSemantics = "FEC-FR"

var (
	// ErrInvalidSSRC is returned for a zero SSRC or a group pairing an SSRC with itself.
	ErrInvalidSSRC = errors.New("invalid SSRC")

	// ErrConflictingGroup is returned when an SSRC is already bound to another stream.
	ErrConflictingGroup = errors.New("SSRC already belongs to another stream")

	// ErrInvalidGroup is returned for a malformed ssrc-group description.
	ErrInvalidGroup = errors.New("invalid ssrc-group")
)

// StreamTrackRegistry maps secondary SSRCs to the primary media SSRC they
// belong to. Primary SSRCs resolve to themselves.
type StreamTrackRegistry struct {
	mu        sync.RWMutex
	primaries map[uint32]struct{}
	secondary map[uint32]uint32
}

var _ interfaces.PrimarySSRCResolver = (*StreamTrackRegistry)(nil)

// NewStreamTrackRegistry creates an empty registry.
func NewStreamTrackRegistry() *StreamTrackRegistry {
	logrus.WithFields(logrus.Fields{
		"function": "NewStreamTrackRegistry",
	}).Debug("Creating stream track registry")

	return &StreamTrackRegistry{
		primaries: make(map[uint32]struct{}),
		secondary: make(map[uint32]uint32),
	}
}

// AddMediaStream registers a primary media SSRC without a protection stream.
func (r *StreamTrackRegistry) AddMediaStream(ssrc uint32) error {
	if ssrc == 0 {
		return fmt.Errorf("%w: zero media SSRC", ErrInvalidSSRC)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if primary, ok := r.secondary[ssrc]; ok {
		return fmt.Errorf("%w: %d protects %d", ErrConflictingGroup, ssrc, primary)
	}
	r.primaries[ssrc] = struct{}{}
	return nil
}

// AddFECGroup associates the protection stream fecSSRC with mediaSSRC.
// Registering the same pair twice is not an error.
//
// Parameters:
//   - mediaSSRC: Primary media SSRC
//   - fecSSRC: SSRC the protection packets are sent on
//
// Returns:
//   - error: ErrInvalidSSRC or ErrConflictingGroup
func (r *StreamTrackRegistry) AddFECGroup(mediaSSRC, fecSSRC uint32) error {
	if mediaSSRC == 0 || fecSSRC == 0 || mediaSSRC == fecSSRC {
		return fmt.Errorf("%w: media %d, fec %d", ErrInvalidSSRC, mediaSSRC, fecSSRC)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.secondary[fecSSRC]; ok && existing != mediaSSRC {
		return fmt.Errorf("%w: %d already protects %d", ErrConflictingGroup, fecSSRC, existing)
	}
	if _, ok := r.primaries[fecSSRC]; ok {
		return fmt.Errorf("%w: %d is a media stream", ErrConflictingGroup, fecSSRC)
	}
	if _, ok := r.secondary[mediaSSRC]; ok {
		return fmt.Errorf("%w: %d is a protection stream", ErrConflictingGroup, mediaSSRC)
	}

	r.primaries[mediaSSRC] = struct{}{}
	r.secondary[fecSSRC] = mediaSSRC

	logrus.WithFields(logrus.Fields{
		"function":   "StreamTrackRegistry.AddFECGroup",
		"media_ssrc": mediaSSRC,
		"fec_ssrc":   fecSSRC,
	}).Info("Registered FEC stream")
	return nil
}

// AddSSRCGroup parses an SDP ssrc-group value such as "FEC-FR 1111 2222" and
// registers it. The leading "a=ssrc-group:" is optional.
func (r *StreamTrackRegistry) AddSSRCGroup(group string) error {
	mediaSSRC, fecSSRC, err := ParseSSRCGroup(group)
	if err != nil {
		return err
	}
	return r.AddFECGroup(mediaSSRC, fecSSRC)
}

// ParseSSRCGroup extracts the media and protection SSRCs of an FEC-FR group.
func ParseSSRCGroup(group string) (uint32, uint32, error) {
	value := strings.TrimSpace(group)
	value = strings.TrimPrefix(value, "a=")
	value = strings.TrimPrefix(value, "ssrc-group:")

	fields := strings.Fields(value)
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("%w: expected semantics and two SSRCs in %q", ErrInvalidGroup, group)
	}
	if !strings.EqualFold(fields[0], FECGroupSemantics) {
		return 0, 0, fmt.Errorf("%w: unsupported semantics %q", ErrInvalidGroup, fields[0])
	}

	ssrcs := make([]uint32, 2)
	for i, field := range fields[1:] {
		v, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: SSRC %q: %v", ErrInvalidGroup, field, err)
		}
		ssrcs[i] = uint32(v)
	}
	return ssrcs[0], ssrcs[1], nil
}

// PrimarySSRC implements interfaces.PrimarySSRCResolver.
func (r *StreamTrackRegistry) PrimarySSRC(ssrc uint32) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if primary, ok := r.secondary[ssrc]; ok {
		return primary, true
	}
	if _, ok := r.primaries[ssrc]; ok {
		return ssrc, true
	}
	return 0, false
}

// RemoveStream forgets ssrc. Removing a media stream also forgets its
// protection streams.
func (r *StreamTrackRegistry) RemoveStream(ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.secondary, ssrc)
	if _, ok := r.primaries[ssrc]; !ok {
		return
	}
	delete(r.primaries, ssrc)
	for secondary, primary := range r.secondary {
		if primary == ssrc {
			delete(r.secondary, secondary)
		}
	}
}

// StreamCount returns the number of registered media and protection streams.
func (r *StreamTrackRegistry) StreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.primaries) + len(r.secondary)
}
