package player

import (
	"errors"
	"log"
	"sync"
)

// ErrAutoplayBlocked is returned by a Surface when playback can't start
// without a user gesture.
var ErrAutoplayBlocked = errors.New("player: autoplay blocked")

// Surface is the audio output driven by the coordinator.
type Surface interface {
	Load(url string) error
	Play() error
	Pause()
	Seek(seconds float64) error
	Position() float64
	Close()
}

type State string

const (
	Idle    State = "idle"
	Loading State = "loading"
	Playing State = "playing"
	Paused  State = "paused"
	Waiting State = "waiting"
	Ended   State = "ended"
	Error   State = "error"
	Blocked State = "blocked"
)

// PlaybackState is a snapshot of the audio session.
type PlaybackState struct {
	State    State
	URL      string
	Final    bool
	Playing  bool
	Position float64
}

// Coordinator owns the playback state of a single audio session. It swaps
// the streaming preview for the final track without stopping playback.
type Coordinator struct {
	mu       sync.Mutex
	surface  Surface
	state    State
	url      string
	final    bool
	playing  bool
	closed   bool
	onChange func(PlaybackState)
	debug    bool
}

type Option func(*Coordinator)

// WithOnChange registers a callback invoked after every state change. The
// callback runs with the coordinator lock held and must not call back into
// the coordinator.
func WithOnChange(fn func(PlaybackState)) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

func WithDebug(debug bool) Option {
	return func(c *Coordinator) {
		c.debug = debug
	}
}

func NewCoordinator(s Surface, opts ...Option) *Coordinator {
	c := &Coordinator{
		surface: s,
		state:   Idle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// State returns the current playback state.
func (c *Coordinator) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Coordinator) snapshot() PlaybackState {
	st := PlaybackState{
		State:   c.state,
		URL:     c.url,
		Final:   c.final,
		Playing: c.playing,
	}
	if c.url != "" && !c.closed {
		st.Position = c.surface.Position()
	}
	return st
}

func (c *Coordinator) set(s State) {
	if c.state == s {
		return
	}
	c.log("player: %s -> %s", c.state, s)
	c.state = s
	if c.onChange != nil {
		c.onChange(c.snapshot())
	}
}

// Offer proposes an audio url. The first url is loaded and autoplayed.
// Later stream urls are ignored, a final url replaces the current source
// keeping the play state and position. Nothing changes once a final url has
// been loaded.
func (c *Coordinator) Offer(url string, final bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || url == "" || c.final {
		return
	}
	if c.url == "" {
		c.url = url
		c.final = final
		c.set(Loading)
		if err := c.surface.Load(url); err != nil {
			c.log("player: couldn't load %s: %v", url, err)
			c.playing = false
			c.set(Error)
			return
		}
		c.play()
		return
	}
	if !final {
		return
	}
	c.swap(url)
}

func (c *Coordinator) swap(url string) {
	// An errored source leaves nothing to resume, the final url is handled
	// as a first load.
	fresh := c.state == Error && !c.playing
	resume := c.playing
	var pos float64
	if !fresh {
		pos = c.surface.Position()
	}
	c.surface.Pause()
	c.url = url
	c.final = true
	if err := c.surface.Load(url); err != nil {
		c.log("player: couldn't load final %s: %v", url, err)
		c.playing = false
		c.set(Error)
		return
	}
	if pos > 0 {
		if err := c.surface.Seek(pos); err != nil {
			c.log("player: couldn't seek to %.2f, restarting: %v", pos, err)
			_ = c.surface.Seek(0)
		}
	}
	if resume || fresh {
		c.play()
		return
	}
	if c.state == Loading || c.state == Waiting || c.state == Playing {
		c.set(Paused)
	}
}

func (c *Coordinator) play() {
	err := c.surface.Play()
	switch {
	case err == nil:
		c.playing = true
		c.set(Playing)
	case errors.Is(err, ErrAutoplayBlocked):
		c.playing = false
		c.set(Blocked)
	default:
		c.log("player: couldn't play: %v", err)
		c.playing = false
		c.set(Error)
	}
}

// Activate resumes playback after a user gesture.
func (c *Coordinator) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.url == "" {
		return
	}
	if c.state == Ended {
		_ = c.surface.Seek(0)
	}
	c.play()
}

// Pause stops playback keeping the position.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.url == "" {
		return
	}
	c.surface.Pause()
	c.playing = false
	if c.state == Playing || c.state == Waiting || c.state == Loading {
		c.set(Paused)
	}
}

// Seek moves the playback position.
func (c *Coordinator) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.url == "" {
		return nil
	}
	return c.surface.Seek(seconds)
}

// OnWaiting must be called when the surface is buffering.
func (c *Coordinator) OnWaiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != Playing {
		return
	}
	c.set(Waiting)
}

// OnPlaying must be called when the surface resumes after buffering.
func (c *Coordinator) OnPlaying() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.url == "" {
		return
	}
	c.playing = true
	c.set(Playing)
}

// OnEnded must be called when the surface reaches the end of the track.
func (c *Coordinator) OnEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.playing = false
	c.set(Ended)
}

// OnError must be called when the surface fails.
func (c *Coordinator) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.log("player: surface error: %v", err)
	c.playing = false
	c.set(Error)
}

// Close tears down the surface. The coordinator ignores every call after
// Close.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.playing = false
	c.surface.Close()
}
