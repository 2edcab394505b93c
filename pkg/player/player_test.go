package player

import (
	"errors"
	"sync"
	"testing"
)

type fakeSurface struct {
	mu       sync.Mutex
	url      string
	pos      float64
	playing  bool
	closed   bool
	blocked  bool
	noSeek   bool
	loads    []string
	seeks    []float64
	playErr  error
	loadErr  error
	closeCnt int
}

func (f *fakeSurface) Load(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.url = url
	f.pos = 0
	f.playing = false
	f.loads = append(f.loads, url)
	return nil
}

func (f *fakeSurface) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked {
		return ErrAutoplayBlocked
	}
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakeSurface) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeSurface) Seek(s float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, s)
	if f.noSeek && s != 0 {
		return errors.New("not seekable")
	}
	f.pos = s
	return nil
}

func (f *fakeSurface) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeSurface) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCnt++
}

func (f *fakeSurface) advance(s float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos += s
}

func TestStreamToFinal(t *testing.T) {
	s := &fakeSurface{}
	c := NewCoordinator(s)
	c.Offer("https://s/stream", false)
	if st := c.State(); st.State != Playing || !st.Playing || st.Final {
		t.Fatalf("State() = %+v; want playing stream", st)
	}
	s.advance(12.5)

	c.Offer("https://s/stream-2", false)
	if len(s.loads) != 1 {
		t.Fatalf("loads = %v; want stream urls ignored after first", s.loads)
	}

	c.Offer("https://a/final.mp3", true)
	st := c.State()
	if st.State != Playing || !st.Playing {
		t.Fatalf("State() = %+v; want still playing", st)
	}
	if !st.Final || st.URL != "https://a/final.mp3" {
		t.Fatalf("State() = %+v; want final url", st)
	}
	if st.Position != 12.5 {
		t.Fatalf("Position = %v; want 12.5", st.Position)
	}
	if !s.playing {
		t.Fatalf("surface not playing after swap")
	}

	c.Offer("https://a/other.mp3", true)
	if len(s.loads) != 2 {
		t.Fatalf("loads = %v; want offers ignored once final", s.loads)
	}
}

func TestFinalKeepsPause(t *testing.T) {
	s := &fakeSurface{}
	c := NewCoordinator(s)
	c.Offer("https://s/stream", false)
	s.advance(3)
	c.Pause()
	c.Offer("https://a/final.mp3", true)
	st := c.State()
	if st.State != Paused || st.Playing || s.playing {
		t.Fatalf("State() = %+v; want paused after swap", st)
	}
	if st.Position != 3 {
		t.Fatalf("Position = %v; want 3", st.Position)
	}
}

func TestSeekFailureRestarts(t *testing.T) {
	s := &fakeSurface{noSeek: true}
	c := NewCoordinator(s)
	c.Offer("https://s/stream", false)
	s.advance(40)
	c.Offer("https://a/final.mp3", true)
	st := c.State()
	if st.State != Playing || !st.Playing {
		t.Fatalf("State() = %+v; want playing, never error", st)
	}
	if st.Position != 0 {
		t.Fatalf("Position = %v; want restart at 0", st.Position)
	}
	if len(s.seeks) != 2 || s.seeks[0] != 40 || s.seeks[1] != 0 {
		t.Fatalf("seeks = %v; want [40 0]", s.seeks)
	}
}

func TestBlocked(t *testing.T) {
	s := &fakeSurface{blocked: true}
	var states []State
	c := NewCoordinator(s, WithOnChange(func(p PlaybackState) {
		states = append(states, p.State)
	}))
	c.Offer("https://a/final.mp3", true)
	if st := c.State(); st.State != Blocked || st.Playing {
		t.Fatalf("State() = %+v; want blocked", st)
	}

	s.blocked = false
	c.Activate()
	if st := c.State(); st.State != Playing || !st.Playing {
		t.Fatalf("State() = %+v; want playing after activate", st)
	}
	want := []State{Loading, Blocked, Playing}
	if len(states) != len(want) {
		t.Fatalf("states = %v; want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v; want %v", states, want)
		}
	}
}

func TestSurfaceEvents(t *testing.T) {
	tests := []struct {
		name  string
		event func(c *Coordinator)
		want  State
		play  bool
	}{
		{name: "waiting", event: func(c *Coordinator) { c.OnWaiting() }, want: Waiting, play: true},
		{name: "ended", event: func(c *Coordinator) { c.OnEnded() }, want: Ended},
		{name: "error", event: func(c *Coordinator) { c.OnError(errors.New("decode")) }, want: Error},
		{name: "waiting then playing", event: func(c *Coordinator) { c.OnWaiting(); c.OnPlaying() }, want: Playing, play: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(&fakeSurface{})
			c.Offer("https://s/stream", false)
			tt.event(c)
			if st := c.State(); st.State != tt.want || st.Playing != tt.play {
				t.Fatalf("State() = %+v; want %s playing=%v", st, tt.want, tt.play)
			}
		})
	}
}

func TestLoadError(t *testing.T) {
	s := &fakeSurface{loadErr: errors.New("404")}
	c := NewCoordinator(s)
	c.Offer("https://s/stream", false)
	if st := c.State(); st.State != Error {
		t.Fatalf("State() = %+v; want error", st)
	}
}

func TestFinalAfterLoadError(t *testing.T) {
	s := &fakeSurface{loadErr: errors.New("404")}
	c := NewCoordinator(s)
	c.Offer("https://s/stream", false)
	if st := c.State(); st.State != Error {
		t.Fatalf("State() = %+v; want error", st)
	}
	s.mu.Lock()
	s.loadErr = nil
	s.mu.Unlock()
	c.Offer("https://f/1", true)
	st := c.State()
	if st.State != Playing || !st.Playing || !st.Final || st.URL != "https://f/1" {
		t.Fatalf("State() = %+v; want final url playing", st)
	}
	if len(s.seeks) != 0 {
		t.Fatalf("seeks = %v; want none", s.seeks)
	}
}

func TestClose(t *testing.T) {
	s := &fakeSurface{}
	c := NewCoordinator(s)
	c.Offer("https://s/stream", false)
	c.Close()
	c.Close()
	if s.closeCnt != 1 {
		t.Fatalf("surface closed %d times; want 1", s.closeCnt)
	}
	before := c.State()
	c.Offer("https://a/final.mp3", true)
	c.Activate()
	c.Pause()
	c.OnEnded()
	c.OnError(errors.New("late"))
	if err := c.Seek(10); err != nil {
		t.Fatalf("Seek() after close err = %v; want nil", err)
	}
	after := c.State()
	if after != before {
		t.Fatalf("State() changed after close: %+v != %+v", after, before)
	}
	if len(s.loads) != 1 {
		t.Fatalf("loads = %v; want no load after close", s.loads)
	}
}
