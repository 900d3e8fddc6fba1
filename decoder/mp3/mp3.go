// Package mp3 adapts github.com/gopxl/beep's MP3 decoder (backed by
// github.com/hajimehoshi/go-mp3) to the player's Decoder interface.
package mp3

import (
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"

	"lyra/decoder"
	"lyra/lyraerr"
)

const packetFrames = 1024

// Decoder wraps a beep.StreamSeekCloser over an MP3 bitstream.
type Decoder struct {
	stream beep.StreamSeekCloser
	format beep.Format
	buf    [][2]float64
}

// New decodes src as MP3. src is closed when the Decoder is closed.
func New(src io.ReadCloser) (*Decoder, error) {
	stream, format, err := mp3.Decode(src)
	if err != nil {
		return nil, lyraerr.Wrap(lyraerr.InvalidArgument, "decode mp3", err)
	}
	return &Decoder{
		stream: stream,
		format: format,
		buf:    make([][2]float64, packetFrames),
	}, nil
}

func (d *Decoder) NextPacket() (*decoder.Packet, error) {
	n, ok := d.stream.Stream(d.buf)
	if !ok {
		if err := d.stream.Err(); err != nil {
			return nil, lyraerr.Wrap(lyraerr.Unavailable, "mp3 stream", err)
		}
		return nil, nil // clean end of stream
	}
	samples := make([]float32, n*2)
	for i := 0; i < n; i++ {
		samples[2*i] = float32(d.buf[i][0])
		samples[2*i+1] = float32(d.buf[i][1])
	}
	return &decoder.Packet{
		Samples:    samples,
		Channels:   2,
		SampleRate: int(d.format.SampleRate),
		PositionMs: d.positionMs(),
	}, nil
}

func (d *Decoder) Seek(positionMs uint32) (uint32, error) {
	sample := d.format.SampleRate.N(time.Duration(positionMs) * time.Millisecond)
	if sample > d.stream.Len() {
		sample = d.stream.Len()
	}
	if err := d.stream.Seek(sample); err != nil {
		return 0, lyraerr.Wrap(lyraerr.InvalidArgument, "seek mp3 stream", err)
	}
	return d.positionMs(), nil
}

func (d *Decoder) Position() uint32 { return d.positionMs() }

func (d *Decoder) Close() error {
	if err := d.stream.Close(); err != nil {
		return lyraerr.Wrap(lyraerr.Unavailable, "close mp3 stream", err)
	}
	return nil
}

func (d *Decoder) positionMs() uint32 {
	dur := d.format.SampleRate.D(d.stream.Position())
	return uint32(dur.Milliseconds())
}
