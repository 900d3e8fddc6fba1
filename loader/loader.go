// Package loader resolves a track identifier to a concrete encrypted
// file in the preferred format, attaches a decoder, and reads the
// embedded loudness metadata.
package loader

import (
	"context"
	"io"
	"log"

	"lyra/cryptostream"
	"lyra/decoder"
	"lyra/decoder/flac"
	"lyra/decoder/mp3"
	"lyra/decoder/vorbis"
	"lyra/lyraerr"
)

// Deps bundles the Track Loader's external collaborators.
type Deps struct {
	Metadata MetadataProvider
	Files    FileOpener
	Keys     KeyProvider
	// Bitrate is the configured preferred bitrate in kbps (96, 160, or
	// 320); any other value is treated as the nearest of those three.
	Bitrate int

	// VorbisBitstream and FlacBitstream perform the actual sample decode
	// once the loudness header (Vorbis only) has been stripped and the
	// stream windowed into a Subfile; full bitstream parsing for these
	// formats is out of scope for this module.
	VorbisBitstream vorbis.BitstreamFactory
	FlacBitstream   flac.BitstreamFactory
}

// LoadedTrack is everything the Player Core needs to start pulling
// packets: the attached decoder, loudness data, the fetch controller
// driving background download, the resolved audio item, and the
// estimated byte rate.
type LoadedTrack struct {
	Decoder          decoder.Decoder
	Loudness         LoudnessData
	FetchController  FetchController
	AudioItem        AudioItem
	BytesPerSecond   int
	DurationMs       uint32
	StreamPositionMs uint32
	IsExplicit       bool
}

// Load runs the full track-loading algorithm for id, seeking the
// resulting decoder to clamp(positionMs, 0, duration).
func Load(ctx context.Context, deps Deps, id TrackID, positionMs uint32) (*LoadedTrack, error) {
	item, err := resolveAudioItem(ctx, deps.Metadata, id)
	if err != nil {
		return nil, err
	}

	format, fileID, err := selectFormat(item, deps.Bitrate)
	if err != nil {
		return nil, err
	}

	lt, err := openAndDecode(ctx, deps, item, format, fileID, positionMs, true)
	if err != nil {
		return nil, err
	}
	return lt, nil
}

// resolveAudioItem implements step 1: fetch, and on unavailability fan
// out to alternatives in parallel, taking the first available one.
func resolveAudioItem(ctx context.Context, mp MetadataProvider, id TrackID) (AudioItem, error) {
	item, err := mp.FetchAudioItem(ctx, id)
	if err != nil {
		return AudioItem{}, lyraerr.Wrap(lyraerr.Unavailable, "fetch audio item", err)
	}
	if item.Available() {
		return item, nil
	}
	if len(item.Alternatives) == 0 {
		return AudioItem{}, lyraerr.New(lyraerr.Unavailable, "track unavailable and has no alternatives")
	}

	type result struct {
		item AudioItem
		err  error
	}
	results := make(chan result, len(item.Alternatives))
	for _, alt := range item.Alternatives {
		alt := alt
		go func() {
			it, err := mp.FetchAudioItem(ctx, alt)
			results <- result{it, err}
		}()
	}
	for range item.Alternatives {
		r := <-results
		if r.err == nil && r.item.Available() {
			return r.item, nil
		}
	}
	return AudioItem{}, lyraerr.New(lyraerr.Unavailable, "no alternative track is available")
}

// selectFormat implements steps 2-3: pick the first candidate format
// that the item actually has a file for.
func selectFormat(item AudioItem, bitrateKbps int) (Format, string, error) {
	for _, f := range preferenceOrder(bitrateKbps) {
		if fileID, ok := item.Files[f]; ok {
			return f, fileID, nil
		}
	}
	return "", "", lyraerr.New(lyraerr.InvalidArgument, "no candidate file for track in any supported format")
}

// openAndDecode implements steps 4-9, including the cache-eviction retry.
func openAndDecode(ctx context.Context, deps Deps, item AudioItem, format Format, fileID string, positionMs uint32, allowRetry bool) (*LoadedTrack, error) {
	src, totalLen, fc, err := deps.Files.OpenFile(ctx, fileID)
	if err != nil {
		return nil, lyraerr.Wrap(lyraerr.Unavailable, "open encrypted file", err)
	}

	key, err := deps.Keys.Key(ctx, fileID, item.GID)
	if err != nil {
		if !lyraerr.Is(err, lyraerr.FailedPrecondition) {
			return nil, lyraerr.Wrap(lyraerr.Unavailable, "fetch decryption key", err)
		}
		log.Printf("[loader] no decryption key for file %s, continuing unencrypted", fileID)
		key = nil
	}

	stream, err := cryptostream.New(src, key)
	if err != nil {
		return nil, err
	}

	dec, loudness, err := constructDecoder(deps, format, stream, totalLen)
	if err != nil {
		if allowRetry {
			deps.Files.EvictCache(fileID)
			return openAndDecode(ctx, deps, item, format, fileID, positionMs, false)
		}
		return nil, err
	}

	target := clamp(positionMs, 0, item.DurationMs)
	actual, err := dec.Seek(target)
	if err != nil {
		log.Printf("[loader] seek to %dms failed, resetting to 0: %v", target, err)
		actual, err = dec.Seek(0)
		if err != nil {
			dec.Close()
			return nil, lyraerr.Wrap(lyraerr.Unavailable, "seek decoder to start", err)
		}
	}

	fc.SetStreamingMode()

	return &LoadedTrack{
		Decoder:          dec,
		Loudness:         loudness,
		FetchController:  fc,
		AudioItem:        item,
		BytesPerSecond:   byteRate(format),
		DurationMs:       item.DurationMs,
		StreamPositionMs: actual,
		IsExplicit:       item.Explicit,
	}, nil
}

func constructDecoder(deps Deps, format Format, stream *cryptostream.Stream, totalLen int64) (decoder.Decoder, LoudnessData, error) {
	switch format.family() {
	case familyVorbis:
		dec, loud, err := vorbis.Open(stream, totalLen, deps.VorbisBitstream)
		if err != nil {
			return nil, LoudnessData{}, err
		}
		return dec, LoudnessData(loud), nil
	case familyFLAC:
		dec, err := flac.Open(stream, deps.FlacBitstream)
		if err != nil {
			return nil, LoudnessData{}, err
		}
		return dec, DefaultLoudness(), nil
	default:
		dec, err := mp3.New(readSeekCloser{stream})
		if err != nil {
			return nil, LoudnessData{}, err
		}
		return dec, DefaultLoudness(), nil
	}
}

// readSeekCloser adapts the cryptostream.Stream (an io.ReadSeeker) to the
// io.ReadCloser the MP3 decoder constructor expects, while still exposing
// Seek so the decoder can use it.
type readSeekCloser struct {
	*cryptostream.Stream
}

func (readSeekCloser) Close() error { return nil }

func clamp(v, lo, hi uint32) uint32 {
	if hi != 0 && v > hi {
		return 0 // exceeding duration silently resets to 0, per spec
	}
	if v < lo {
		return lo
	}
	return v
}

var _ io.ReadSeekCloser = readSeekCloser{}
