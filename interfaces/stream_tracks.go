package interfaces

import "github.com/opd-ai/toxfec/av/rtp"

// PrimarySSRCResolver maps a secondary SSRC (for example a FlexFEC stream)
// to the primary media SSRC it protects.
type PrimarySSRCResolver interface {
	// PrimarySSRC returns the media SSRC that ssrc protects, or false if the
	// association is not known yet.
	PrimarySSRC(ssrc uint32) (uint32, bool)
}

// ResolverFunc adapts a plain function to PrimarySSRCResolver.
type ResolverFunc func(ssrc uint32) (uint32, bool)

// PrimarySSRC implements PrimarySSRCResolver.
func (f ResolverFunc) PrimarySSRC(ssrc uint32) (uint32, bool) {
	return f(ssrc)
}

// IdentityResolver resolves every SSRC to itself. It suits streams where
// protection packets share the media SSRC.
type IdentityResolver struct{}

// PrimarySSRC implements PrimarySSRCResolver.
func (IdentityResolver) PrimarySSRC(ssrc uint32) (uint32, bool) {
	return ssrc, true
}

// PacketTransformer rewrites packet batches on their way in and out of a
// media pipeline. Batches may contain nil holes.
type PacketTransformer interface {
	// ReverseTransform processes received packets.
	ReverseTransform(batch rtp.Batch) rtp.Batch

	// ForwardTransform processes packets about to be sent.
	ForwardTransform(batch rtp.Batch) rtp.Batch

	// Close releases per-stream state.
	Close() error
}
