package song

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the music API credential is missing.
	ErrConfiguration = errors.New("configura MUSIC_API_KEY")
	// ErrValidation is returned when the generation request is malformed.
	ErrValidation = errors.New("song: invalid request")
	// ErrMissingTaskID is returned when the upstream API accepted a task but
	// the response carries no recognizable task id.
	ErrMissingTaskID = errors.New("song: no task id in upstream response")
)

// LyricsError reports a lyrics task that didn't finish with usable text.
type LyricsError struct {
	Status  string
	Message string
	Err     error
}

func (e *LyricsError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("tarea no finalizó en SUCCESS. Estado: %s", e.Status)
	}
	return "Lyrics: " + msg
}

func (e *LyricsError) Unwrap() error {
	return e.Err
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
