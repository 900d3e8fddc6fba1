// Package vorbis reads the proprietary loudness prelude that precedes an
// Ogg Vorbis container in this service's encrypted files, then hands the
// remaining bytes to an externally supplied Vorbis bitstream decoder.
// Full Ogg/Vorbis container parsing is out of scope; this package only
// does the bytes a decoder-agnostic loader needs before it can construct
// one.
package vorbis

import (
	"encoding/binary"
	"io"
	"math"

	"lyra/cryptostream"
	"lyra/decoder"
	"lyra/lyraerr"
)

// HeaderLen is the size, in bytes, of the proprietary prelude that
// precedes the Ogg Vorbis stream proper.
const HeaderLen = 167

const loudnessOffset = 144

// Loudness holds the four values packed into the header.
type Loudness struct {
	TrackGainDB float32
	TrackPeak   float32
	AlbumGainDB float32
	AlbumPeak   float32
}

// DefaultLoudness is used whenever loudness data is absent.
func DefaultLoudness() Loudness {
	return Loudness{TrackGainDB: 0, TrackPeak: 1.0, AlbumGainDB: 0, AlbumPeak: 1.0}
}

// ReadHeader consumes HeaderLen bytes from src (which must currently be
// positioned at the start of the container) and returns the embedded
// loudness values. src is left positioned at byte HeaderLen.
func ReadHeader(src io.Reader) (Loudness, error) {
	buf := make([]byte, HeaderLen)
	if _, err := io.ReadFull(src, buf); err != nil {
		return Loudness{}, lyraerr.Wrap(lyraerr.InvalidArgument, "read vorbis header", err)
	}
	return parseLoudness(buf), nil
}

func parseLoudness(header []byte) Loudness {
	b := header[loudnessOffset : loudnessOffset+16]
	return Loudness{
		TrackGainDB: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		TrackPeak:   math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		AlbumGainDB: math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		AlbumPeak:   math.Float32frombits(binary.LittleEndian.Uint32(b[12:16])),
	}
}

// BitstreamFactory builds a decoder.Decoder from the raw Vorbis bitstream
// that follows the header; it is supplied externally since full Vorbis
// decode isn't implemented here.
type BitstreamFactory func(io.ReadSeeker) (decoder.Decoder, error)

// Open reads and strips the loudness header from a windowed source, wraps
// the remaining bytes in a Subfile so the bitstream decoder sees a file
// starting at byte 0, and delegates construction to factory.
func Open(src io.ReadSeeker, totalLen int64, factory BitstreamFactory) (decoder.Decoder, Loudness, error) {
	loud, err := ReadHeader(src)
	if err != nil {
		return nil, Loudness{}, err
	}
	body, err := cryptostream.NewSubfile(src, HeaderLen, totalLen-HeaderLen)
	if err != nil {
		return nil, Loudness{}, lyraerr.Wrap(lyraerr.InvalidArgument, "window vorbis body", err)
	}
	dec, err := factory(body)
	if err != nil {
		return nil, Loudness{}, lyraerr.Wrap(lyraerr.InvalidArgument, "construct vorbis decoder", err)
	}
	return dec, loud, nil
}
