// Package interfaces defines the collaborator contracts of the FEC subsystem.
//
// The FEC engine does not know how streams are negotiated. When a protection
// packet arrives on an SSRC of its own (FlexFEC), the engine asks a
// [PrimarySSRCResolver] which media SSRC that protection stream belongs to:
//
//	resolver := interfaces.ResolverFunc(func(ssrc uint32) (uint32, bool) {
//	    if ssrc == fecSSRC {
//	        return mediaSSRC, true
//	    }
//	    return 0, false
//	})
//	engine := fec.NewEngine(cfg, resolver)
//
// An unknown mapping is not an error: the protection packet is passed through
// untouched until the association is established.
//
// [PacketTransformer] is the shape the engine exposes to the surrounding media
// pipeline, with one method per direction:
//
//	batch = transformer.ReverseTransform(batch) // received packets
//	batch = transformer.ForwardTransform(batch) // packets about to be sent
//
// The real package provides a concrete resolver backed by a stream track
// table, and the testing package a lossy channel to exercise transformers.
package interfaces
