// Package flac delegates FLAC bitstream decode to an externally supplied
// decoder; unlike Ogg Vorbis, this service's FLAC files carry no
// proprietary loudness prelude, so there is nothing to strip here. Full
// FLAC container parsing is out of scope.
package flac

import (
	"io"

	"lyra/decoder"
	"lyra/lyraerr"
)

// BitstreamFactory builds a decoder.Decoder from a raw FLAC stream.
type BitstreamFactory func(io.ReadSeeker) (decoder.Decoder, error)

// Open delegates directly to factory; src is handed through unmodified.
func Open(src io.ReadSeeker, factory BitstreamFactory) (decoder.Decoder, error) {
	dec, err := factory(src)
	if err != nil {
		return nil, lyraerr.Wrap(lyraerr.InvalidArgument, "construct flac decoder", err)
	}
	return dec, nil
}
