package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/igolaizola/goatmusic/pkg/poll"
	"github.com/igolaizola/goatmusic/pkg/song"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultTimeout     = 10 * time.Minute
	DefaultAutoAdvance = 20 * time.Second
)

var (
	// ErrGenerationFailed is reported when the task ends in a failure status
	// or the status can't be understood.
	ErrGenerationFailed = errors.New("player: generation failed")
	// ErrParse is returned by providers when a status response is malformed.
	ErrParse = errors.New("player: couldn't parse task status")
)

// StatusProvider returns the current state of a generation task.
type StatusProvider interface {
	Task(ctx context.Context, id string) (*song.TaskView, error)
}

type TrackerConfig struct {
	Provider    StatusProvider
	TaskID      string
	Coordinator *Coordinator
	Interval    time.Duration
	Timeout     time.Duration
	// AutoAdvance is the time to wait for the final track before OnAdvance is
	// called with whatever url is available. Negative disables it.
	AutoAdvance time.Duration
	OnAdvance   func(url string, final bool)
	OnUpdate    func(v *song.TaskView)
	Debug       bool
}

// Result is the outcome of a tracked task.
type Result struct {
	Status string
	URL    string
	Final  bool
	View   *song.TaskView
}

// Tracker polls a task in the background until the final audio is ready.
type Tracker struct {
	cfg    TrackerConfig
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	url     string
	final   bool
	advance sync.Once

	result *Result
	err    error
}

// Track starts tracking a task. Stop or the context cancellation end it.
func Track(ctx context.Context, cfg TrackerConfig) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AutoAdvance == 0 {
		cfg.AutoAdvance = DefaultAutoAdvance
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if cfg.AutoAdvance > 0 && cfg.OnAdvance != nil {
		go t.autoAdvance(ctx)
	}
	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = t.run(ctx)
	}()
	return t
}

func (t *Tracker) log(format string, args ...interface{}) {
	if t.cfg.Debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Stop cancels tracking and waits for the poll loop to exit.
func (t *Tracker) Stop() {
	t.cancel()
	<-t.done
}

// Wait blocks until tracking finishes.
func (t *Tracker) Wait() (*Result, error) {
	<-t.done
	return t.result, t.err
}

// Done is closed when tracking finishes.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) run(parent context.Context) (*Result, error) {
	ctx, cancel := context.WithTimeout(parent, t.cfg.Timeout)
	defer cancel()

	var last *song.TaskView
	fetch := func(ctx context.Context) (*song.TaskView, error) {
		v, err := t.cfg.Provider.Task(ctx, t.cfg.TaskID)
		switch {
		case errors.Is(err, ErrParse):
			return last, err
		case err != nil:
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			t.log("player: ignoring status error for %s: %v", t.cfg.TaskID, err)
			return last, nil
		}
		last = v
		t.update(v)
		return v, nil
	}
	terminal := func(v *song.TaskView) bool {
		return v != nil && v.Done()
	}
	attempts := int(t.cfg.Timeout/t.cfg.Interval) + 1
	v, err := poll.Until(ctx, fetch, terminal, attempts, t.cfg.Interval)

	res := t.snapshot(v)
	switch {
	case errors.Is(err, ErrParse):
		return res, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	case parent.Err() != nil:
		return res, parent.Err()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, poll.ErrTimeout):
		return res, poll.ErrTimeout
	case err != nil:
		return res, err
	}
	if !v.Succeeded() {
		return res, fmt.Errorf("%w: %s", ErrGenerationFailed, v.Status)
	}
	t.fireAdvance()
	return res, nil
}

func (t *Tracker) update(v *song.TaskView) {
	if t.cfg.OnUpdate != nil {
		t.cfg.OnUpdate(v)
	}
	if v.Track == nil {
		return
	}
	t.mu.Lock()
	if v.Track.StreamAudioURL != "" && t.url == "" {
		t.url = v.Track.StreamAudioURL
	}
	final := v.Succeeded()
	if final {
		t.url = v.Track.AudioURL
		t.final = true
	}
	t.mu.Unlock()

	if c := t.cfg.Coordinator; c != nil {
		if v.Track.StreamAudioURL != "" {
			c.Offer(v.Track.StreamAudioURL, false)
		}
		if final {
			c.Offer(v.Track.AudioURL, true)
		}
	}
}

func (t *Tracker) snapshot(v *song.TaskView) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := &Result{
		URL:   t.url,
		Final: t.final,
		View:  v,
	}
	if v != nil {
		res.Status = v.Status
	}
	return res
}

func (t *Tracker) autoAdvance(ctx context.Context) {
	timer := time.NewTimer(t.cfg.AutoAdvance)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-t.done:
	case <-timer.C:
		t.log("player: auto advancing %s", t.cfg.TaskID)
		t.fireAdvance()
	}
}

func (t *Tracker) fireAdvance() {
	if t.cfg.OnAdvance == nil {
		return
	}
	t.advance.Do(func() {
		t.mu.Lock()
		u, final := t.url, t.final
		t.mu.Unlock()
		t.cfg.OnAdvance(u, final)
	})
}

// HTTPProvider reads task states from the get-task endpoint of a server.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *HTTPProvider) Task(ctx context.Context, id string) (*song.TaskView, error) {
	u := fmt.Sprintf("%s/api/get-task?taskId=%s", p.baseURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("player: couldn't create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player: couldn't get task %s: %w", id, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("player: couldn't read task %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player: task %s status %d: %s", id, resp.StatusCode, string(b))
	}
	var v song.TaskView
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &v, nil
}
