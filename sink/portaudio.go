package sink

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"lyra/lyraerr"
)

// PortAudio is the production Sink, adapted from a capture/playback
// stream's open/start/stop lifecycle: Pa_StopStream is thread-safe and
// unblocks any in-flight Pa_WriteStream call, so Stop always stops before
// it closes.
type PortAudio struct {
	mu             sync.Mutex
	sampleRate     float64
	channels       int
	framesPerWrite int

	stream interface {
		Start() error
		Stop() error
		Close() error
		Write() error
	}
	buf   []float32
	state State
}

// NewPortAudio constructs a sink targeting the default output device.
// portaudio.Initialize must already have been called by the caller
// (spec treats process-wide audio library init as an external concern).
func NewPortAudio(sampleRate float64, channels, framesPerWrite int) *PortAudio {
	return &PortAudio{
		sampleRate:     sampleRate,
		channels:       channels,
		framesPerWrite: framesPerWrite,
		state:          Closed,
	}
}

func (p *PortAudio) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Running {
		return nil
	}

	outputDev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return lyraerr.Wrap(lyraerr.Unavailable, "default output device", err)
	}

	p.buf = make([]float32, p.framesPerWrite*p.channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: p.channels,
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      p.sampleRate,
		FramesPerBuffer: p.framesPerWrite,
	}
	stream, err := portaudio.OpenStream(params, p.buf)
	if err != nil {
		return lyraerr.Wrap(lyraerr.Unavailable, "open output stream", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return lyraerr.Wrap(lyraerr.Unavailable, "start output stream", err)
	}
	p.stream = stream
	p.state = Running
	return nil
}

// Write blocks until all samples have been written, in chunks of
// framesPerWrite*channels. A final partial chunk is padded with silence
// and written at once; it is not carried over to the next call.
func (p *PortAudio) Write(samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Running {
		return lyraerr.New(lyraerr.FailedPrecondition, "sink is not running")
	}
	for len(samples) > 0 {
		n := copy(p.buf, samples)
		samples = samples[n:]
		if n < len(p.buf) {
			for i := n; i < len(p.buf); i++ {
				p.buf[i] = 0
			}
		}
		if err := p.stream.Write(); err != nil {
			return lyraerr.Wrap(lyraerr.Unavailable, "write output stream", err)
		}
	}
	return nil
}

// CloseTemporarily stops and closes the native stream but leaves the sink
// reusable via Start; used when gapless playback is disabled.
func (p *PortAudio) CloseTemporarily() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked(TemporarilyClosed)
}

func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked(Closed)
}

func (p *PortAudio) stopLocked(target State) error {
	if p.state == Closed && target == Closed {
		return nil
	}
	if p.stream == nil {
		p.state = target
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return lyraerr.Wrap(lyraerr.Unavailable, "stop output stream", err)
	}
	if err := p.stream.Close(); err != nil {
		return lyraerr.Wrap(lyraerr.Unavailable, "close output stream", err)
	}
	p.stream = nil
	p.state = target
	return nil
}

// State reports the sink's current lifecycle state.
func (p *PortAudio) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
