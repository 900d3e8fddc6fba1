package loader

import (
	"context"
	"io"
)

// TrackID identifies a track to the metadata and file-fetching backends.
type TrackID string

// AudioItem is the metadata needed to pick and open a concrete encoded
// file for a track.
type AudioItem struct {
	ID           TrackID
	GID          []byte // opaque identifier used by the key service
	Files        map[Format]string
	Alternatives []TrackID
	DurationMs   uint32
	Explicit     bool
}

// Available reports whether this item has at least one fetchable file.
// An item with no files but with Alternatives is a region-restricted (or
// otherwise unavailable) item the loader should chase alternatives for.
func (a AudioItem) Available() bool { return len(a.Files) > 0 }

// MetadataProvider resolves a TrackID to its AudioItem.
type MetadataProvider interface {
	FetchAudioItem(ctx context.Context, id TrackID) (AudioItem, error)
}

// FetchController reports and controls a file's background download.
type FetchController interface {
	// SetStreamingMode switches the controller from fetching only the
	// header bytes needed for decoder construction to fetching the whole
	// file in the background.
	SetStreamingMode()
	// WholeTrackAvailable reports whether every byte of the file has
	// already been fetched (consulted by the Player Core's preload
	// trigger, not by the loader itself).
	WholeTrackAvailable() bool
}

// FileOpener opens the encrypted container for a file and can evict a
// corrupt cache entry so the next OpenFile re-fetches from the network.
type FileOpener interface {
	OpenFile(ctx context.Context, fileID string) (src io.ReadSeeker, totalLen int64, fc FetchController, err error)
	EvictCache(fileID string)
}

// KeyProvider resolves the AES decryption key for a file. Returning an
// error with Kind FailedPrecondition signals "no key available" — the
// loader treats that as "continue unencrypted" rather than a hard
// failure; any other Kind aborts the load.
type KeyProvider interface {
	Key(ctx context.Context, fileID string, trackGID []byte) ([]byte, error)
}

// LoudnessData is the four normalisation values embedded in (or assumed
// absent from) a track's container.
type LoudnessData struct {
	TrackGainDB float32
	TrackPeak   float32
	AlbumGainDB float32
	AlbumPeak   float32
}

// DefaultLoudness is used whenever a format carries no loudness header.
func DefaultLoudness() LoudnessData {
	return LoudnessData{TrackGainDB: 0, TrackPeak: 1.0, AlbumGainDB: 0, AlbumPeak: 1.0}
}
