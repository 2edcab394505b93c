package musicapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

type Model string

const (
	ModelV3_5     Model = "V3_5"
	ModelV4       Model = "V4"
	ModelV4_5     Model = "V4_5"
	ModelV4_5Plus Model = "V4_5PLUS"
)

func ParseModel(s string) (Model, error) {
	switch m := Model(s); m {
	case ModelV3_5, ModelV4, ModelV4_5, ModelV4_5Plus:
		return m, nil
	}
	return "", fmt.Errorf("musicapi: unknown model %q", s)
}

type Status string

const (
	StatusPending             Status = "PENDING"
	StatusTextSuccess         Status = "TEXT_SUCCESS"
	StatusFirstSuccess        Status = "FIRST_SUCCESS"
	StatusSuccess             Status = "SUCCESS"
	StatusCreateTaskFailed    Status = "CREATE_TASK_FAILED"
	StatusGenerateAudioFailed Status = "GENERATE_AUDIO_FAILED"
	StatusCallbackException   Status = "CALLBACK_EXCEPTION"
	StatusSensitiveWordError  Status = "SENSITIVE_WORD_ERROR"
)

// Failed reports whether the status is a terminal failure.
func (s Status) Failed() bool {
	switch s {
	case StatusCreateTaskFailed, StatusGenerateAudioFailed, StatusCallbackException, StatusSensitiveWordError:
		return true
	}
	return false
}

// LyricsDone reports whether a lyrics task reached a terminal state. Lyrics
// tasks are terminal on any known status other than pending.
func (s Status) LyricsDone() bool {
	return s != "" && s != StatusPending
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type LyricsRequest struct {
	Prompt      string `json:"prompt"`
	CallBackURL string `json:"callBackUrl"`
}

type GenerateRequest struct {
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        Model  `json:"model"`
	NegativeTags string `json:"negativeTags,omitempty"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	Prompt       string `json:"prompt"`
	CallBackURL  string `json:"callBackUrl"`
}

// Submission is the answer to a task creation request.
type Submission struct {
	TaskID  string
	Message string
	Raw     json.RawMessage
}

type LyricsRecord struct {
	TaskID       string          `json:"taskId"`
	Status       Status          `json:"status"`
	ErrorMessage string          `json:"errorMessage"`
	Response     json.RawMessage `json:"response"`

	Raw json.RawMessage `json:"-"`
}

type Track struct {
	ID             string  `json:"id"`
	AudioURL       string  `json:"audioUrl"`
	StreamAudioURL string  `json:"streamAudioUrl"`
	ImageURL       string  `json:"imageUrl"`
	Prompt         string  `json:"prompt"`
	ModelName      string  `json:"modelName"`
	Title          string  `json:"title"`
	Tags           string  `json:"tags"`
	Duration       float64 `json:"duration"`
}

type GenerateRecord struct {
	TaskID       string `json:"taskId"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		TaskID   string  `json:"taskId"`
		SunoData []Track `json:"sunoData"`
	} `json:"response"`

	Raw json.RawMessage `json:"-"`
}

// First returns the first track of the record, if any.
func (r *GenerateRecord) First() *Track {
	if len(r.Response.SunoData) == 0 {
		return nil
	}
	return &r.Response.SunoData[0]
}

// CreateLyrics starts a lyrics generation task.
func (c *Client) CreateLyrics(ctx context.Context, prompt string) (*Submission, error) {
	req := &LyricsRequest{
		Prompt:      prompt,
		CallBackURL: c.callbackURL,
	}
	b, err := c.do(ctx, "POST", "/lyrics", req, nil)
	if err != nil {
		return nil, fmt.Errorf("musicapi: couldn't create lyrics task: %w", err)
	}
	return submission(b), nil
}

// LyricsRecord returns the current state of a lyrics task.
func (c *Client) LyricsRecord(ctx context.Context, taskID string) (*LyricsRecord, error) {
	var resp envelope
	b, err := c.do(ctx, "GET", "/lyrics/record-info?taskId="+url.QueryEscape(taskID), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("musicapi: couldn't get lyrics record %s: %w", taskID, err)
	}
	var rec LyricsRecord
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &rec); err != nil {
			return nil, fmt.Errorf("musicapi: couldn't unmarshal lyrics record %s: %w", taskID, err)
		}
	}
	rec.Raw = b
	return &rec, nil
}

// Generate starts a music generation task.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*Submission, error) {
	if req.CallBackURL == "" {
		req.CallBackURL = c.callbackURL
	}
	b, err := c.do(ctx, "POST", "/generate", req, nil)
	if err != nil {
		return nil, fmt.Errorf("musicapi: couldn't create generation task: %w", err)
	}
	return submission(b), nil
}

// GenerateRecord returns the current state of a music generation task.
func (c *Client) GenerateRecord(ctx context.Context, taskID string) (*GenerateRecord, error) {
	var resp envelope
	b, err := c.do(ctx, "GET", "/generate/record-info?taskId="+url.QueryEscape(taskID), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("musicapi: couldn't get generation record %s: %w", taskID, err)
	}
	var rec GenerateRecord
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &rec); err != nil {
			return nil, fmt.Errorf("musicapi: couldn't unmarshal generation record %s: %w", taskID, err)
		}
	}
	rec.Raw = b
	return &rec, nil
}

func submission(b []byte) *Submission {
	s := &Submission{Raw: b}
	s.TaskID, _ = TaskID(b)
	s.Message = vendorMessage(b)
	return s
}
