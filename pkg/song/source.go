package song

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/igolaizola/goatmusic/pkg/lyrics"
	"github.com/igolaizola/goatmusic/pkg/musicapi"
	"github.com/igolaizola/goatmusic/pkg/openai"
	"github.com/igolaizola/goatmusic/pkg/poll"
)

const (
	DefaultLyricsAttempts = 30
	DefaultLyricsInterval = 3 * time.Second
)

// LyricsSource writes lyrics for a prompt.
type LyricsSource interface {
	Lyrics(ctx context.Context, prompt string) (*lyrics.Result, error)
}

// UpstreamLyrics generates lyrics with the music API lyrics endpoint and
// waits for the task to finish.
type UpstreamLyrics struct {
	client   *musicapi.Client
	attempts int
	interval time.Duration
	debug    bool
}

func NewUpstreamLyrics(client *musicapi.Client, attempts int, interval time.Duration, debug bool) *UpstreamLyrics {
	if attempts <= 0 {
		attempts = DefaultLyricsAttempts
	}
	if interval <= 0 {
		interval = DefaultLyricsInterval
	}
	return &UpstreamLyrics{
		client:   client,
		attempts: attempts,
		interval: interval,
		debug:    debug,
	}
}

func (u *UpstreamLyrics) Lyrics(ctx context.Context, prompt string) (*lyrics.Result, error) {
	sub, err := u.client.CreateLyrics(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if sub.TaskID == "" {
		return nil, fmt.Errorf("song: lyrics: %w", ErrMissingTaskID)
	}

	fetch := func(ctx context.Context) (*musicapi.LyricsRecord, error) {
		rec, err := u.client.LyricsRecord(ctx, sub.TaskID)
		if err != nil {
			return nil, err
		}
		if u.debug {
			log.Printf("song: lyrics task %s status %q\n", sub.TaskID, rec.Status)
		}
		return rec, nil
	}
	done := func(rec *musicapi.LyricsRecord) bool {
		return rec.Status.LyricsDone()
	}
	rec, err := poll.Until(ctx, fetch, done, u.attempts, u.interval)
	switch {
	case errors.Is(err, poll.ErrTimeout):
		status := string(musicapi.StatusPending)
		if rec != nil && rec.Status != "" {
			status = string(rec.Status)
		}
		return nil, &LyricsError{
			Status:  status,
			Message: fmt.Sprintf("tarea sin estado terminal tras %d intentos. Estado: %s", u.attempts, status),
			Err:     err,
		}
	case err != nil:
		return nil, err
	}

	if rec.Status != musicapi.StatusSuccess {
		return nil, &LyricsError{
			Status:  string(rec.Status),
			Message: lyricsFailure(rec),
		}
	}
	resp, err := lyrics.Parse(rec.Response)
	if err != nil {
		return nil, err
	}
	res, err := lyrics.Extract(resp)
	if err != nil {
		log.Printf("song: lyrics task %s succeeded without text: %s\n", sub.TaskID, string(rec.Raw))
		return nil, &LyricsError{
			Status:  string(rec.Status),
			Message: "SUCCESS pero no llegó texto en la respuesta",
			Err:     err,
		}
	}
	return res, nil
}

func lyricsFailure(rec *musicapi.LyricsRecord) string {
	msg := rec.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("Estado: %s", rec.Status)
	}
	return "tarea no finalizó en SUCCESS. " + msg
}

// OpenAILyrics writes lyrics with a chat completion model.
type OpenAILyrics struct {
	client *openai.Client
}

func NewOpenAILyrics(client *openai.Client) *OpenAILyrics {
	return &OpenAILyrics{client: client}
}

func (o *OpenAILyrics) Lyrics(ctx context.Context, prompt string) (*lyrics.Result, error) {
	msg := prompt + "\nResponde solo con la letra, sin explicaciones."
	text, err := o.client.ChatCompletion(ctx, msg)
	if err != nil {
		return nil, err
	}
	text = lyrics.MakeShort(text)
	if text == "" {
		return nil, &LyricsError{
			Status:  string(musicapi.StatusSuccess),
			Message: "SUCCESS pero no llegó texto en la respuesta",
			Err:     lyrics.ErrEmptyLyrics,
		}
	}
	return &lyrics.Result{Text: text}, nil
}
