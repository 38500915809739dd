// Package real provides the production stream track table for the FEC
// subsystem.
//
// Signaling announces which SSRCs belong together, for example with the SDP
// attribute
//
//	a=ssrc-group:FEC-FR 1111 2222
//
// where 1111 is the media stream and 2222 its FlexFEC protection stream.
// [StreamTrackRegistry] records those associations and answers the FEC
// engine's primary-SSRC lookups:
//
//	tracks := real.NewStreamTrackRegistry()
//	if err := tracks.AddSSRCGroup("FEC-FR 1111 2222"); err != nil {
//	    return err
//	}
//	engine := fec.NewEngine(cfg, tracks)
//
// The registry is safe for concurrent use; lookups take a read lock only.
package real
