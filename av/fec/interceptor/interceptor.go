// Package interceptor plugs the FEC engine into a pion interceptor chain.
//
// Local streams pass every outgoing packet through Engine.ForwardTransform and
// write the protection packets right after the media packet that completed
// them. Remote streams pass every received packet through
// Engine.ReverseTransform; protection packets are swallowed and recovered
// packets are queued and handed out by subsequent reads.
//
// FlexFEC protection SSRCs announced in the stream info are registered in the
// interceptor's stream track table, which the engine uses as its resolver.
package interceptor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/opd-ai/toxfec/av/fec"
	"github.com/opd-ai/toxfec/av/rtp"
	"github.com/opd-ai/toxfec/real"
	pioninterceptor "github.com/pion/interceptor"
	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by reads and writes after Close.
var ErrClosed = errors.New("FEC interceptor closed")

// Option configures a FEC interceptor.
type Option func(*Interceptor) error

// WithStreamTracks shares an existing stream track table instead of a
// private one, so signaling code can register SSRC groups directly.
func WithStreamTracks(tracks *real.StreamTrackRegistry) Option {
	return func(i *Interceptor) error {
		if tracks == nil {
			return fmt.Errorf("stream track registry cannot be nil")
		}
		i.tracks = tracks
		return nil
	}
}

// Factory creates FEC interceptors.
type Factory struct {
	config fec.Config
	opts   []Option
}

// NewFactory validates config and returns an interceptor factory.
//
// Parameters:
//   - config: Engine configuration shared by every interceptor
//   - opts: Interceptor options
//
// Returns:
//   - *Factory: Factory for pion's interceptor registry
//   - error: fec.ErrInvalidConfig for out-of-range values
func NewFactory(config fec.Config, opts ...Option) (*Factory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Factory{config: config, opts: opts}, nil
}

// NewInterceptor implements interceptor.Factory.
func (f *Factory) NewInterceptor(id string) (pioninterceptor.Interceptor, error) {
	i := &Interceptor{
		id:     id,
		tracks: real.NewStreamTrackRegistry(),
	}
	for _, opt := range f.opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.engine = fec.NewEngine(f.config, i.tracks)

	logrus.WithFields(logrus.Fields{
		"function": "Factory.NewInterceptor",
		"id":       id,
		"format":   f.config.Format.String(),
	}).Info("Created FEC interceptor")
	return i, nil
}

// Interceptor applies forward error correction to the streams bound to it.
type Interceptor struct {
	pioninterceptor.NoOp

	id     string
	engine *fec.Engine
	tracks *real.StreamTrackRegistry

	mu     sync.Mutex
	closed bool
}

// Engine returns the FEC engine, for statistics and runtime reconfiguration.
func (i *Interceptor) Engine() *fec.Engine {
	return i.engine
}

// StreamTracks returns the stream track table used to resolve FlexFEC SSRCs.
func (i *Interceptor) StreamTracks() *real.StreamTrackRegistry {
	return i.tracks
}

func (i *Interceptor) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// registerStream records the media SSRC and its FlexFEC SSRC, if any.
func (i *Interceptor) registerStream(info *pioninterceptor.StreamInfo) {
	if info.SSRCForwardErrorCorrection != 0 {
		if err := i.tracks.AddFECGroup(info.SSRC, info.SSRCForwardErrorCorrection); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Interceptor.registerStream",
				"ssrc":     info.SSRC,
				"fec_ssrc": info.SSRCForwardErrorCorrection,
				"error":    err.Error(),
			}).Warn("Failed to register FEC stream")
		}
		return
	}
	if err := i.tracks.AddMediaStream(info.SSRC); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Interceptor.registerStream",
			"ssrc":     info.SSRC,
			"error":    err.Error(),
		}).Debug("Media stream not registered")
	}
}

// BindLocalStream implements interceptor.Interceptor.
func (i *Interceptor) BindLocalStream(info *pioninterceptor.StreamInfo, writer pioninterceptor.RTPWriter) pioninterceptor.RTPWriter {
	i.registerStream(info)

	return pioninterceptor.RTPWriterFunc(
		func(header *pionrtp.Header, payload []byte, attributes pioninterceptor.Attributes) (int, error) {
			if i.isClosed() {
				return 0, ErrClosed
			}

			pkt, err := rtp.FromRTP(&pionrtp.Packet{Header: *header, Payload: payload})
			if err != nil {
				return writer.Write(header, payload, attributes)
			}

			var (
				result int
				errs   []error
			)
			for n, out := range i.engine.ForwardTransform(rtp.Batch{pkt}) {
				if out == nil {
					continue
				}
				written, err := writePacket(writer, out, attributes)
				if err != nil {
					errs = append(errs, err)
				}
				if n == 0 {
					result = written
				}
			}
			return result, errors.Join(errs...)
		},
	)
}

// writePacket hands a raw packet to a pion writer as header and payload.
func writePacket(writer pioninterceptor.RTPWriter, pkt *rtp.RawPacket, attributes pioninterceptor.Attributes) (int, error) {
	header, err := pkt.Header()
	if err != nil {
		return 0, err
	}
	return writer.Write(&header, pkt.Payload(), attributes)
}

// UnbindLocalStream implements interceptor.Interceptor.
func (i *Interceptor) UnbindLocalStream(info *pioninterceptor.StreamInfo) {
	logrus.WithFields(logrus.Fields{
		"function": "Interceptor.UnbindLocalStream",
		"ssrc":     info.SSRC,
	}).Debug("Unbinding local stream")
}

// BindRemoteStream implements interceptor.Interceptor.
func (i *Interceptor) BindRemoteStream(info *pioninterceptor.StreamInfo, reader pioninterceptor.RTPReader) pioninterceptor.RTPReader {
	i.registerStream(info)
	stream := &remoteStream{engine: i.engine, reader: reader, closed: i.isClosed}
	return pioninterceptor.RTPReaderFunc(stream.read)
}

// UnbindRemoteStream implements interceptor.Interceptor.
func (i *Interceptor) UnbindRemoteStream(info *pioninterceptor.StreamInfo) {
	i.tracks.RemoveStream(info.SSRC)
	if info.SSRCForwardErrorCorrection != 0 {
		i.tracks.RemoveStream(info.SSRCForwardErrorCorrection)
	}
}

// Close tears down the engine. Subsequent reads and writes fail with ErrClosed.
func (i *Interceptor) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	i.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Interceptor.Close",
		"id":       i.id,
	}).Info("Closing FEC interceptor")
	return i.engine.Close()
}

// remoteStream feeds received packets through the engine and queues the
// packets a single read could not return.
type remoteStream struct {
	engine *fec.Engine
	reader pioninterceptor.RTPReader
	closed func() bool

	mu      sync.Mutex
	pending deque.Deque[*rtp.RawPacket]
}

func (s *remoteStream) read(b []byte, attributes pioninterceptor.Attributes) (int, pioninterceptor.Attributes, error) {
	for {
		if s.closed() {
			return 0, nil, ErrClosed
		}
		if pkt, ok := s.popPending(); ok {
			return copyOut(b, pkt), attributes, nil
		}

		n, attr, err := s.reader.Read(b, attributes)
		if err != nil {
			return n, attr, err
		}

		data := make([]byte, n)
		copy(data, b[:n])
		received := rtp.NewRawPacketFromBytes(data)
		if !received.IsValid() {
			return n, attr, nil
		}

		s.mu.Lock()
		for _, pkt := range s.engine.ReverseTransform(rtp.Batch{received}) {
			if pkt != nil {
				s.pending.PushBack(pkt)
			}
		}
		s.mu.Unlock()
		attributes = attr
	}
}

func (s *remoteStream) popPending() (*rtp.RawPacket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Len() == 0 {
		return nil, false
	}
	return s.pending.PopFront(), true
}

// copyOut copies pkt into b, truncating if b is too small like a socket read.
func copyOut(b []byte, pkt *rtp.RawPacket) int {
	return copy(b, pkt.Bytes())
}
