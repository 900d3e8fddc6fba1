package player

import (
	"sync/atomic"

	"lyra/loader"
)

// State is one node of the player's state machine.
type State int

const (
	Stopped State = iota
	Loading
	Paused
	Playing
	EndOfTrack
	// Invalid is a sentinel that must never be observed on entry to or
	// exit from a transition; reaching it is a programming error.
	Invalid
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Loading:
		return "Loading"
	case Paused:
		return "Paused"
	case Playing:
		return "Playing"
	case EndOfTrack:
		return "EndOfTrack"
	default:
		return "Invalid"
	}
}

// PlayRequestID is a monotonic identifier generated at every Load and
// threaded through every event so consumers can correlate events to the
// load that produced them.
type PlayRequestID uint64

var playRequestCounter uint64

// nextPlayRequestID returns a process-wide monotonically increasing id.
func nextPlayRequestID() PlayRequestID {
	return PlayRequestID(atomic.AddUint64(&playRequestCounter, 1))
}

// LoudnessData is the four normalisation values a loaded track carries.
type LoudnessData = loader.LoudnessData
