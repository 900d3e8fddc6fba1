// Package decoder defines the bitstream-decoder contract the Player Core
// pulls packets from, independent of the underlying audio format.
package decoder

import "lyra/lyraerr"

// Packet is one decoded chunk of interleaved float32 samples.
type Packet struct {
	Samples    []float32
	Channels   int
	SampleRate int
	// PositionMs is the packet's nominal position within the track, used
	// by the Player Core's position-correction logic.
	PositionMs uint32
}

// Decoder is the interface every format adapter implements.
type Decoder interface {
	// NextPacket returns the next decoded packet, or lyraerr.Unimplemented-
	// free io.EOF-equivalent signalled by a nil packet and nil error when
	// the stream is exhausted.
	NextPacket() (*Packet, error)
	// Seek repositions the decoder to positionMs, returning the actual
	// position landed on.
	Seek(positionMs uint32) (uint32, error)
	// Position reports the decoder's current nominal position.
	Position() uint32
	Close() error
}

// ErrUnsupportedFormat is returned by adapter constructors given a stream
// they cannot parse.
func ErrUnsupportedFormat(format string) error {
	return lyraerr.New(lyraerr.InvalidArgument, "unsupported decoder format: "+format)
}
