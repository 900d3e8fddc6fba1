// Package player implements the gapless playback engine: a state machine
// that loads encrypted tracks, decodes them, applies loudness
// normalisation and an optional dynamic limiter, and drives a pluggable
// output sink with preload look-ahead.
package player

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"lyra/decoder"
	"lyra/eventbus"
	"lyra/loader"
	"lyra/sink"
)

// preloadBeforeEnd is PRELOAD_NEXT_TRACK_BEFORE_END from the concurrency
// timeout table.
const preloadBeforeEnd = 30 * time.Second

// positionDriftThreshold is the minimum observed drift, in either
// direction, before a PositionCorrection event is emitted.
const positionDriftThreshold = 1 * time.Second

// Config parameterises a Player.
type Config struct {
	LoaderDeps  loader.Deps
	Sink        sink.Sink
	Gapless     bool // false means Load on a different track temporarily closes the sink
	Normalisation NormalisationConfig
	Now         func() time.Time // overridable for tests; defaults to time.Now
}

type loadedState struct {
	track           loader.TrackID
	decoder         decoder.Decoder
	loudness        LoudnessData
	fetchController loader.FetchController
	durationMs      uint32
	nominalStart    time.Time
	preloadEmitted  bool
}

type loadResult struct {
	requestID PlayRequestID
	track     loader.TrackID
	startPlay bool
	loaded    *loader.LoadedTrack
	err       error
}

// Player runs the playback state machine. Its state is owned exclusively
// by the goroutine running Run; every external interaction happens
// through the command channel, matching the single-writer rule the
// Dealer and Service Client also follow for their own owned state.
type Player struct {
	cmds chan Command
	stop chan struct{}
	once sync.Once

	events  *eventbus.Bus[Event]
	sinkCb  func(sink.State)

	loaderDeps loader.Deps
	snk        sink.Sink
	gapless    bool
	normCfg    NormalisationConfig
	limiter    *Limiter
	volume     float64
	now        func() time.Time

	state   State
	current *loadedState

	loadCh      chan loadResult
	loadCancel  context.CancelFunc
	pendingID   PlayRequestID
	pendingTrack loader.TrackID
	pendingPlay bool

	preloadCh     chan loadResult
	preloadCancel context.CancelFunc
	preloadTrack  loader.TrackID
	preloadReady  *loadResult

	sinkState sink.State
}

// New constructs a Player. It does not start the event loop; the caller
// runs it with Run.
func New(cfg Config) *Player {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	p := &Player{
		cmds:       make(chan Command, 16),
		stop:       make(chan struct{}),
		events:     eventbus.New[Event](32),
		loaderDeps: cfg.LoaderDeps,
		snk:        cfg.Sink,
		gapless:    cfg.Gapless,
		normCfg:    cfg.Normalisation,
		limiter: &Limiter{
			ThresholdDBFS: cfg.Normalisation.ThresholdDBFS,
			KneeDB:        cfg.Normalisation.KneeDB,
			AttackCf:      cfg.Normalisation.AttackCf,
			ReleaseCf:     cfg.Normalisation.ReleaseCf,
		},
		volume:    1.0,
		now:       now,
		state:     Stopped,
		sinkState: sink.Closed,
	}
	return p
}

// Run drives the player's event loop until Close is called or ctx is
// cancelled. It is meant to be launched with `go p.Run(ctx)`; it locks
// that goroutine to its OS thread (runtime.LockOSThread), standing in for
// a dedicated player thread, so blocking decoder/sink I/O never starves
// the Go scheduler's other goroutines.
func (p *Player) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			p.teardown()
			return
		case <-p.stop:
			p.teardown()
			return
		case cmd := <-p.cmds:
			p.handleCommand(cmd)
			continue
		case res := <-p.loadChOrNil():
			p.handleLoadResult(res)
			continue
		case res := <-p.preloadChOrNil():
			p.handlePreloadResult(res)
			continue
		default:
		}

		if p.state == Playing {
			p.pumpOnePacket()
			continue
		}

		// Nothing happened and we're not playing: block until the next
		// command or future resolves instead of busy-looping.
		select {
		case <-ctx.Done():
			p.teardown()
			return
		case <-p.stop:
			p.teardown()
			return
		case cmd := <-p.cmds:
			p.handleCommand(cmd)
		case res := <-p.loadChOrNil():
			p.handleLoadResult(res)
		case res := <-p.preloadChOrNil():
			p.handlePreloadResult(res)
		}
	}
}

// Close signals the event loop to finish its current packet and exit.
func (p *Player) Close() {
	p.once.Do(func() { close(p.stop) })
}

// Send enqueues a command, processed strictly in order.
func (p *Player) Send(cmd Command) {
	p.cmds <- cmd
}

// Events returns a receive-only channel of every emitted event.
func (p *Player) Events() <-chan Event {
	return p.events.Subscribe()
}

// SetSinkEventCallback registers a callback invoked on every observed
// sink lifecycle transition.
func (p *Player) SetSinkEventCallback(cb func(sink.State)) {
	p.sinkCb = cb
}

func (p *Player) loadChOrNil() chan loadResult {
	return p.loadCh
}

func (p *Player) preloadChOrNil() chan loadResult {
	return p.preloadCh
}

func (p *Player) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case Load:
		p.onLoad(c)
	case Preload:
		p.onPreload(c)
	case Play:
		p.onPlay()
	case Pause:
		p.onPause()
	case Stop:
		p.onStop()
	case Seek:
		p.onSeek(c.PositionMs)
	case SetAutoNormaliseAsAlbum:
		p.normCfg.AutoAsAlbum = c.Enabled
	case SetVolume:
		p.volume = clampUnit(c.Volume)
	case EmitEvent:
		p.events.Emit(c.Event)
	default:
		log.Printf("[player] unknown command %T", cmd)
	}
}

func (p *Player) onLoad(c Load) {
	switch p.state {
	case Stopped:
		if !p.tryAdoptPreload(c) {
			p.startLoad(c.Track, c.Play, c.PositionMs)
			p.state = Loading
		}
	case Loading:
		p.startLoad(c.Track, c.Play, c.PositionMs)
	case Paused, Playing:
		if p.current != nil && p.current.track == c.Track {
			p.seekInPlace(c.PositionMs)
			if c.Play && p.state == Paused {
				p.onPlay()
			} else if !c.Play && p.state == Playing {
				p.onPause()
			}
			return
		}
		p.teardownForReload()
		if !p.tryAdoptPreload(c) {
			p.startLoad(c.Track, c.Play, c.PositionMs)
			p.state = Loading
		}
	case EndOfTrack:
		if p.current != nil && p.current.track == c.Track {
			p.rewindReuse(c.PositionMs, c.Play)
			return
		}
		p.teardownForReload()
		if !p.tryAdoptPreload(c) {
			p.startLoad(c.Track, c.Play, c.PositionMs)
			p.state = Loading
		}
	}
}

// tryAdoptPreload short-circuits a Load by reusing an already-completed
// preload for the same track rather than starting a fresh fetch. A ready
// preload for a different track is discarded.
func (p *Player) tryAdoptPreload(c Load) bool {
	if p.preloadReady == nil {
		return false
	}
	if p.preloadReady.track != c.Track || p.preloadReady.err != nil {
		if p.preloadReady.loaded != nil {
			p.preloadReady.loaded.Decoder.Close()
		}
		p.preloadReady = nil
		return false
	}
	res := p.preloadReady
	p.preloadReady = nil
	id := nextPlayRequestID()
	p.pendingID = id
	p.adopt(id, res.track, res.loaded, c.Play)
	if c.PositionMs != 0 {
		p.seekInPlace(c.PositionMs)
	}
	return true
}

func (p *Player) onPreload(c Preload) {
	if p.preloadCancel != nil {
		p.preloadCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.preloadCancel = cancel
	p.preloadTrack = c.Track
	p.preloadReady = nil
	ch := make(chan loadResult, 1)
	p.preloadCh = ch
	go func() {
		lt, err := loader.Load(ctx, p.loaderDeps, c.Track, 0)
		select {
		case ch <- loadResult{track: c.Track, loaded: lt, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (p *Player) onPlay() {
	switch p.state {
	case Loading:
		p.pendingPlay = true
	case Paused:
		p.state = Playing
		p.rebaseNominalStart(p.currentPositionMs())
		p.startSink()
		p.events.Emit(PlayingEvent{base: base{p.currentRequestID()}, PositionMs: p.currentPositionMs()})
	}
}

func (p *Player) onPause() {
	switch p.state {
	case Loading:
		p.pendingPlay = false
	case Playing:
		p.state = Paused
		p.events.Emit(PausedEvent{base: base{p.currentRequestID()}, PositionMs: p.currentPositionMs()})
	}
}

func (p *Player) onStop() {
	if p.loadCancel != nil {
		p.loadCancel()
		p.loadCancel = nil
	}
	p.loadCh = nil
	p.teardownCurrent()
	p.closeSinkPermanently()
	p.state = Stopped
	p.events.Emit(StoppedEvent{base: base{p.pendingID}})
}

func (p *Player) onSeek(ms uint32) {
	switch p.state {
	case Loading:
		p.startLoad(p.pendingTrack, p.pendingPlay, ms)
	case Paused, Playing:
		p.seekInPlace(ms)
	}
}

func (p *Player) seekInPlace(ms uint32) {
	if p.current == nil {
		return
	}
	target := clampMs(ms, p.current.durationMs)
	actual, err := p.current.decoder.Seek(target)
	if err != nil {
		log.Printf("[player] seek in place failed: %v", err)
		return
	}
	p.rebaseNominalStart(actual)
	p.events.Emit(Seeked{base: base{p.currentRequestID()}, PositionMs: actual})
}

func (p *Player) rewindReuse(ms uint32, play bool) {
	p.seekInPlace(ms)
	if play {
		p.state = Playing
		p.startSink()
		p.events.Emit(PlayingEvent{base: base{p.currentRequestID()}, PositionMs: p.currentPositionMs()})
	} else {
		p.state = Paused
		p.events.Emit(PausedEvent{base: base{p.currentRequestID()}, PositionMs: p.currentPositionMs()})
	}
}

func (p *Player) startLoad(track loader.TrackID, play bool, positionMs uint32) {
	if p.loadCancel != nil {
		p.loadCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.loadCancel = cancel
	id := nextPlayRequestID()
	p.pendingID = id
	p.pendingTrack = track
	p.pendingPlay = play
	ch := make(chan loadResult, 1)
	p.loadCh = ch
	p.events.Emit(Loading{base: base{id}, Track: track})
	go func() {
		lt, err := loader.Load(ctx, p.loaderDeps, track, positionMs)
		select {
		case ch <- loadResult{requestID: id, track: track, startPlay: play, loaded: lt, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (p *Player) handleLoadResult(res loadResult) {
	p.loadCh = nil
	if res.requestID != p.pendingID {
		return // superseded by a later Load
	}
	if res.err != nil {
		log.Printf("[player] load of %s failed: %v", res.track, res.err)
		p.state = Stopped
		p.events.Emit(StoppedEvent{base: base{res.requestID}})
		return
	}
	p.adopt(res.requestID, res.track, res.loaded, res.startPlay)
}

func (p *Player) handlePreloadResult(res loadResult) {
	p.preloadCh = nil
	if res.track != p.preloadTrack {
		if res.loaded != nil {
			res.loaded.Decoder.Close()
		}
		return
	}
	if res.err != nil {
		log.Printf("[player] preload of %s failed: %v", res.track, res.err)
		return
	}
	r := res
	p.preloadReady = &r
}

func (p *Player) adopt(id PlayRequestID, track loader.TrackID, lt *loader.LoadedTrack, play bool) {
	p.teardownCurrent()
	nominalStart := p.now().Add(-time.Duration(lt.StreamPositionMs) * time.Millisecond)
	p.current = &loadedState{
		track:           track,
		decoder:         lt.Decoder,
		loudness:        LoudnessData(lt.Loudness),
		fetchController: lt.FetchController,
		durationMs:      lt.DurationMs,
		nominalStart:    nominalStart,
	}
	p.events.Emit(TrackChanged{base: base{id}, Track: track, Duration: lt.DurationMs})
	if play {
		p.state = Playing
		p.startSink()
		p.events.Emit(PlayingEvent{base: base{id}, PositionMs: lt.StreamPositionMs})
	} else {
		p.state = Paused
		p.events.Emit(PausedEvent{base: base{id}, PositionMs: lt.StreamPositionMs})
	}
}

func (p *Player) pumpOnePacket() {
	if p.current == nil {
		p.state = Stopped
		return
	}
	pkt, err := p.current.decoder.NextPacket()
	if err != nil {
		log.Printf("[player] decode error: %v", err)
		p.onStop()
		return
	}
	if pkt == nil {
		p.state = EndOfTrack
		p.events.Emit(EndOfTrackEvent{base: base{p.currentRequestID()}})
		return
	}

	applyPipeline(pkt.Samples, p.normCfg, p.current.loudness, p.limiter, p.volume)
	p.startSink()
	if err := p.snk.Write(pkt.Samples); err != nil {
		log.Printf("[player] sink write failed: %v", err)
		p.state = Paused
		return
	}

	p.checkPositionCorrection(pkt.PositionMs)
	p.checkPreloadTrigger(pkt.PositionMs)
}

func (p *Player) checkPositionCorrection(packetMs uint32) {
	if p.current == nil {
		return
	}
	expected := p.now().Sub(p.current.nominalStart)
	actual := time.Duration(packetMs) * time.Millisecond
	drift := actual - expected
	if drift < 0 {
		drift = -drift
	}
	if drift < positionDriftThreshold {
		return
	}
	// Ahead-of-wall-clock drift smaller than the threshold is normal
	// output buffering, not real drift; the magnitude check above
	// already excludes it from triggering a correction.
	p.rebaseNominalStart(packetMs)
	p.events.Emit(PositionCorrection{base: base{p.currentRequestID()}, PositionMs: packetMs})
}

func (p *Player) checkPreloadTrigger(packetMs uint32) {
	if p.current == nil || p.current.preloadEmitted {
		return
	}
	if p.current.durationMs == 0 || p.current.fetchController == nil {
		return
	}
	remaining := time.Duration(p.current.durationMs-packetMs) * time.Millisecond
	if remaining > preloadBeforeEnd {
		return
	}
	if !p.current.fetchController.WholeTrackAvailable() {
		return
	}
	p.current.preloadEmitted = true
	p.events.Emit(TimeToPreloadNextTrack{base: base{p.currentRequestID()}})
}

func (p *Player) rebaseNominalStart(positionMs uint32) {
	if p.current == nil {
		return
	}
	p.current.nominalStart = p.now().Add(-time.Duration(positionMs) * time.Millisecond)
}

func (p *Player) currentPositionMs() uint32 {
	if p.current == nil {
		return 0
	}
	return uint32(p.now().Sub(p.current.nominalStart).Milliseconds())
}

func (p *Player) currentRequestID() PlayRequestID {
	return p.pendingID
}

func (p *Player) teardownCurrent() {
	if p.current == nil {
		return
	}
	p.current.decoder.Close()
	p.current = nil
}

// teardownForReload tears down the active decoder and, if gapless
// playback is disabled, temporarily closes the sink rather than leaving
// it running across the gap.
func (p *Player) teardownForReload() {
	p.teardownCurrent()
	if !p.gapless {
		p.closeSinkTemporarily()
	}
}

func (p *Player) startSink() {
	if p.sinkState == sink.Running {
		return
	}
	if err := p.snk.Start(); err != nil {
		log.Printf("[player] sink start failed: %v", err)
		p.state = Paused
		return
	}
	p.setSinkState(sink.Running)
}

func (p *Player) closeSinkTemporarily() {
	if p.sinkState != sink.Running {
		p.setSinkState(sink.TemporarilyClosed)
		return
	}
	if err := p.snk.CloseTemporarily(); err != nil {
		log.Printf("[player] sink temporary close failed: %v", err)
		return
	}
	p.setSinkState(sink.TemporarilyClosed)
}

// closeSinkPermanently tears the sink all the way down. A failure here
// is fatal per the sink lifecycle contract; since the player runs as a
// library goroutine rather than owning the process, "fatal" is
// surfaced as a dedicated log line rather than a crash.
func (p *Player) closeSinkPermanently() {
	if p.sinkState == sink.Closed {
		return
	}
	if err := p.snk.Close(); err != nil {
		log.Printf("[player] FATAL: sink close failed: %v", err)
	}
	p.setSinkState(sink.Closed)
}

func (p *Player) setSinkState(s sink.State) {
	p.sinkState = s
	if p.sinkCb != nil {
		p.sinkCb(s)
	}
}

func (p *Player) teardown() {
	if p.loadCancel != nil {
		p.loadCancel()
	}
	if p.preloadCancel != nil {
		p.preloadCancel()
	}
	p.teardownCurrent()
	p.closeSinkPermanently()
}

func clampMs(v, max uint32) uint32 {
	if max != 0 && v > max {
		return 0
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
