package loader

// Format identifies one concrete encoded rendition of a track.
type Format string

const (
	OggVorbis96  Format = "OGG_VORBIS_96"
	OggVorbis160 Format = "OGG_VORBIS_160"
	OggVorbis320 Format = "OGG_VORBIS_320"
	MP3_96       Format = "MP3_96"
	MP3_160      Format = "MP3_160"
	MP3_320      Format = "MP3_320"
	FLAC         Format = "FLAC"
)

// family groups formats by the decoder adapter that can read them.
type family int

const (
	familyVorbis family = iota
	familyMP3
	familyFLAC
)

func (f Format) family() family {
	switch f {
	case OggVorbis96, OggVorbis160, OggVorbis320:
		return familyVorbis
	case MP3_96, MP3_160, MP3_320:
		return familyMP3
	default:
		return familyFLAC
	}
}

// byteRateKiB is the fixed format -> KiB/s table used to estimate a
// track's byte rate before any bytes are fetched.
var byteRateKiB = map[Format]int{
	OggVorbis96:  12,
	OggVorbis160: 20,
	OggVorbis320: 40,
	MP3_96:       12,
	MP3_160:      20,
	MP3_320:      40,
	FLAC:         112,
}

// byteRate returns the estimated bytes-per-second for f.
func byteRate(f Format) int {
	return byteRateKiB[f] * 1024
}

// preferenceOrder returns the ordered format candidate list for a target
// bitrate in kbps: Ogg Vorbis at the target rate first, then MP3 at the
// target rate, then neighbouring rates in the same order, then FLAC as
// the final fallback.
func preferenceOrder(targetKbps int) []Format {
	rates := []int{96, 160, 320}
	// Start at targetKbps (or the closest known rate) and walk outwards
	// to its neighbours, the lower neighbour first.
	lead := 0
	best := 1 << 30
	for i, r := range rates {
		d := r - targetKbps
		if d < 0 {
			d = -d
		}
		if d < best {
			best = d
			lead = i
		}
	}
	ordered := []int{rates[lead]}
	for lo, hi := lead-1, lead+1; lo >= 0 || hi < len(rates); lo, hi = lo-1, hi+1 {
		if lo >= 0 {
			ordered = append(ordered, rates[lo])
		}
		if hi < len(rates) {
			ordered = append(ordered, rates[hi])
		}
	}

	vorbisFor := map[int]Format{96: OggVorbis96, 160: OggVorbis160, 320: OggVorbis320}
	mp3For := map[int]Format{96: MP3_96, 160: MP3_160, 320: MP3_320}

	out := make([]Format, 0, len(ordered)*2+1)
	for _, r := range ordered {
		out = append(out, vorbisFor[r], mp3For[r])
	}
	out = append(out, FLAC)
	return out
}
