package player

import "lyra/loader"

// Command is one of the operations a caller can enqueue for the player
// thread; commands are processed strictly in send order.
type Command interface {
	isCommand()
}

type cmdBase struct{}

func (cmdBase) isCommand() {}

// Load starts loading a track, optionally beginning playback immediately.
type Load struct {
	cmdBase
	Track      loader.TrackID
	Play       bool
	PositionMs uint32
}

// Preload starts a background load for a track expected to play next.
type Preload struct {
	cmdBase
	Track loader.TrackID
}

// Play resumes or starts playback of the active track.
type Play struct{ cmdBase }

// Pause suspends playback, keeping the decoder and position.
type Pause struct{ cmdBase }

// Stop halts playback and releases the active decoder.
type Stop struct{ cmdBase }

// Seek repositions the active decoder.
type Seek struct {
	cmdBase
	PositionMs uint32
}

// SetAutoNormaliseAsAlbum toggles how NormalisationType Auto resolves.
type SetAutoNormaliseAsAlbum struct {
	cmdBase
	Enabled bool
}

// SetVolume sets the software volume attenuation factor (0.0-1.0), used
// when hardware volume control is unavailable.
type SetVolume struct {
	cmdBase
	Volume float64
}

// EmitEvent passes an externally produced event straight through to the
// event bus; it exists only to let a surrounding controller broadcast
// events it originates (e.g. from the Dealer) on the same channel.
type EmitEvent struct {
	cmdBase
	Event Event
}
