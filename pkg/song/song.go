package song

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/igolaizola/goatmusic/pkg/lyrics"
	"github.com/igolaizola/goatmusic/pkg/metrics"
	"github.com/igolaizola/goatmusic/pkg/musicapi"
)

// DefaultTitle is used when neither the user nor the lyrics source provided
// a title.
const DefaultTitle = "Mi Canción"

// UnwantedTags bias the generator towards short songs.
var UnwantedTags = []string{
	"long intro",
	"long outro",
	"repetitive chorus",
	"extended instrumental",
	"slow build",
}

type Mode string

const (
	ModeAutoLyrics Mode = "autoLyrics"
	ModeLyrics     Mode = "lyrics"
)

// Request is an inbound song generation request.
type Request struct {
	Mode         Mode           `json:"mode"`
	Model        musicapi.Model `json:"model,omitempty"`
	ThemePrompt  string         `json:"themePrompt,omitempty"`
	Lyrics       string         `json:"lyrics,omitempty"`
	Style        string         `json:"style"`
	Title        string         `json:"title"`
	NegativeTags string         `json:"negativeTags,omitempty"`
}

// Validate checks the request fields that don't depend on configuration.
func (r *Request) Validate() error {
	switch r.Mode {
	case ModeAutoLyrics:
	case ModeLyrics:
		if strings.TrimSpace(r.Lyrics) == "" {
			return validationError("lyrics es requerido en modo lyrics")
		}
	default:
		return validationError(fmt.Sprintf("mode inválido %q", r.Mode))
	}
	if r.Model != "" {
		if _, err := musicapi.ParseModel(string(r.Model)); err != nil {
			return validationError(fmt.Sprintf("model inválido %q", r.Model))
		}
	}
	return nil
}

// Track is the first track of a generation task.
type Track struct {
	AudioURL       string  `json:"audioUrl,omitempty"`
	StreamAudioURL string  `json:"streamAudioUrl,omitempty"`
	ImageURL       string  `json:"imageUrl,omitempty"`
	Title          string  `json:"title,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
}

// TaskView is the client facing snapshot of a generation task.
type TaskView struct {
	Status string          `json:"status"`
	Track  *Track          `json:"track"`
	Raw    json.RawMessage `json:"raw"`
}

// Done reports whether the task reached a terminal state.
func (v *TaskView) Done() bool {
	if musicapi.Status(v.Status).Failed() {
		return true
	}
	return v.Succeeded()
}

// Succeeded reports whether the final audio is available.
func (v *TaskView) Succeeded() bool {
	return musicapi.Status(v.Status) == musicapi.StatusSuccess && v.Track != nil && v.Track.AudioURL != ""
}

// Snapshot is the last observed state of a task, as persisted locally.
type Snapshot struct {
	ID             string
	Model          string
	Style          string
	Title          string
	Status         string
	StreamAudioURL string
	AudioURL       string
	ImageURL       string
	Duration       float64
	Archived       bool
}

// Recorder persists task snapshots.
type Recorder interface {
	SaveTask(ctx context.Context, s *Snapshot) error
}

// Cache stores terminal task views.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Archiver copies a finished track to long term storage.
type Archiver interface {
	Archive(ctx context.Context, id, audioURL string) error
}

type Config struct {
	Client       *musicapi.Client
	Lyrics       LyricsSource
	Recorder     Recorder
	Cache        Cache
	Archiver     Archiver
	Metrics      *metrics.Metrics
	DefaultModel musicapi.Model
	Debug        bool
}

type Service struct {
	client       *musicapi.Client
	lyrics       LyricsSource
	recorder     Recorder
	cache        Cache
	archiver     Archiver
	metrics      *metrics.Metrics
	defaultModel musicapi.Model
	debug        bool

	archived sync.Map
	wg       sync.WaitGroup
}

func New(cfg *Config) *Service {
	model := cfg.DefaultModel
	if model == "" {
		model = musicapi.ModelV4
	}
	src := cfg.Lyrics
	if src == nil {
		src = NewUpstreamLyrics(cfg.Client, 0, 0, cfg.Debug)
	}
	return &Service{
		client:       cfg.Client,
		lyrics:       src,
		recorder:     cfg.Recorder,
		cache:        cfg.Cache,
		archiver:     cfg.Archiver,
		metrics:      cfg.Metrics,
		defaultModel: model,
		debug:        cfg.Debug,
	}
}

func (s *Service) log(format string, args ...interface{}) {
	if s.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Configured reports whether the music API credential is set.
func (s *Service) Configured() bool {
	return s.client.HasCredential()
}

// Generate produces the lyrics if needed and submits the generation task.
// It returns the upstream task id.
func (s *Service) Generate(ctx context.Context, req *Request) (string, error) {
	if !s.client.HasCredential() {
		return "", ErrConfiguration
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	title := strings.TrimSpace(req.Title)

	var text string
	switch req.Mode {
	case ModeAutoLyrics:
		prompt := lyrics.BuildPrompt(req.ThemePrompt, req.Style)
		start := time.Now()
		res, err := s.lyrics.Lyrics(ctx, prompt)
		s.metrics.ObserveLyrics(time.Since(start), err)
		if err != nil {
			return "", err
		}
		s.log("song: lyrics ready (%d chars, title %q)", len(res.Text), res.Title)
		text = res.Text
		if title == "" {
			title = res.Title
		}
	case ModeLyrics:
		text = strings.TrimSpace(req.Lyrics)
	}
	if title == "" {
		title = DefaultTitle
	}

	return s.Submit(ctx, &musicapi.GenerateRequest{
		Model:        model,
		NegativeTags: NegativeTags(req.NegativeTags),
		Style:        strings.TrimSpace(req.Style),
		Title:        title,
		Prompt:       text,
	})
}

// Submit sends the generation payload and returns the upstream task id.
func (s *Service) Submit(ctx context.Context, payload *musicapi.GenerateRequest) (string, error) {
	if !s.client.HasCredential() {
		return "", ErrConfiguration
	}
	payload.CustomMode = true
	payload.Instrumental = false
	sub, err := s.client.Generate(ctx, payload)
	if err != nil {
		s.metrics.Submission("error")
		return "", err
	}
	if sub.TaskID == "" {
		s.metrics.Submission("missing_task_id")
		return "", fmt.Errorf("%w: %s", ErrMissingTaskID, sub.Message)
	}
	s.metrics.Submission("ok")
	s.log("song: submitted task %s (%s, %s)", sub.TaskID, payload.Model, payload.Style)
	s.record(ctx, &Snapshot{
		ID:     sub.TaskID,
		Model:  string(payload.Model),
		Style:  payload.Style,
		Title:  payload.Title,
		Status: string(musicapi.StatusPending),
	})
	return sub.TaskID, nil
}

// Task returns the current state of a generation task.
func (s *Service) Task(ctx context.Context, id string) (*TaskView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationError("taskId requerido")
	}
	if !s.client.HasCredential() {
		return nil, ErrConfiguration
	}
	if v, ok := s.cached(ctx, id); ok {
		// Failed archive jobs are retried on later polls.
		if v.Succeeded() {
			s.archive(id, v.Track.AudioURL)
		}
		return v, nil
	}

	rec, err := s.client.GenerateRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &TaskView{
		Status: string(rec.Status),
		Raw:    rec.Raw,
	}
	snap := &Snapshot{
		ID:     id,
		Status: string(rec.Status),
	}
	if t := rec.First(); t != nil {
		v.Track = &Track{
			AudioURL:       t.AudioURL,
			StreamAudioURL: t.StreamAudioURL,
			ImageURL:       t.ImageURL,
			Title:          t.Title,
			Duration:       t.Duration,
		}
		snap.StreamAudioURL = t.StreamAudioURL
		snap.AudioURL = t.AudioURL
		snap.ImageURL = t.ImageURL
		snap.Duration = t.Duration
	}
	s.metrics.TaskStatus(v.Status)
	s.record(ctx, snap)

	if v.Done() {
		s.store(ctx, id, v)
	}
	if v.Succeeded() {
		s.archive(id, v.Track.AudioURL)
	}
	return v, nil
}

// Wait blocks until background archive jobs finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) record(ctx context.Context, snap *Snapshot) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.SaveTask(ctx, snap); err != nil {
		log.Printf("song: couldn't save task %s: %v\n", snap.ID, err)
	}
}

func cacheKey(id string) string {
	return "task:" + id
}

func (s *Service) cached(ctx context.Context, id string) (*TaskView, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		return nil, false
	}
	var v TaskView
	if err := json.Unmarshal(b, &v); err != nil {
		s.log("song: couldn't unmarshal cached task %s: %v", id, err)
		return nil, false
	}
	s.log("song: task %s served from cache", id)
	return &v, true
}

func (s *Service) store(ctx context.Context, id string, v *TaskView) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("song: couldn't marshal task %s: %v\n", id, err)
		return
	}
	if err := s.cache.Set(ctx, cacheKey(id), b); err != nil {
		log.Printf("song: couldn't cache task %s: %v\n", id, err)
	}
}

// archive copies the final track once per task in the background.
func (s *Service) archive(id, audioURL string) {
	if s.archiver == nil {
		return
	}
	if _, loaded := s.archived.LoadOrStore(id, struct{}{}); loaded {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.archiver.Archive(ctx, id, audioURL); err != nil {
			log.Printf("song: couldn't archive task %s: %v\n", id, err)
			s.archived.Delete(id)
			return
		}
		s.log("song: archived task %s", id)
		s.record(ctx, &Snapshot{ID: id, Archived: true})
	}()
}

// NegativeTags returns the user tags followed by the unwanted tags not
// already present, compared case-insensitively.
func NegativeTags(user string) string {
	seen := map[string]struct{}{}
	var tags []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		tags = append(tags, t)
	}
	for _, t := range strings.Split(user, ",") {
		add(t)
	}
	for _, t := range UnwantedTags {
		add(t)
	}
	return strings.Join(tags, ", ")
}

// IsClientError reports whether the error was caused by the caller.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}
