package musicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://api.api.box/api/v1"
	DefaultCallbackURL = "https://example.com/callback"
)

// ErrNoCredential is returned before any request is made when the client
// has no API key.
var ErrNoCredential = errors.New("musicapi: api key not configured")

type Config struct {
	APIKey      string
	BaseURL     string
	CallbackURL string
	Debug       bool
	Client      *http.Client
}

type Client struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	callbackURL string
	debug       bool
}

func New(cfg *Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	callbackURL := cfg.CallbackURL
	if callbackURL == "" {
		callbackURL = DefaultCallbackURL
	}
	return &Client{
		client:      client,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		callbackURL: callbackURL,
		debug:       cfg.Debug,
	}
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return c.apiKey != ""
}

// StatusError is returned when the upstream API answers with a non 2xx
// status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("musicapi: status %d: %s", e.Code, e.Message)
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// do sends a request and returns the raw response body. There is no retry
// logic here, callers decide what to do with failures.
func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNoCredential
	}
	var body []byte
	var reqBody io.Reader
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("musicapi: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	logBody := string(body)
	if len(logBody) > 100 {
		logBody = logBody[:100] + "..."
	}
	c.log("musicapi: do %s %s %s", method, path, logBody)

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("musicapi: couldn't create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("musicapi: couldn't %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("musicapi: couldn't read response body: %w", err)
	}
	c.log("musicapi: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, &StatusError{
			Code:    resp.StatusCode,
			Message: vendorMessage(respBody),
		}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return respBody, fmt.Errorf("musicapi: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return respBody, nil
}

// vendorMessage returns the msg or error field of an error body, falling back
// to the raw body.
func vendorMessage(b []byte) string {
	var v struct {
		Msg   string `json:"msg"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &v); err == nil {
		if v.Msg != "" {
			return v.Msg
		}
		if v.Error != "" {
			return v.Error
		}
	}
	msg := strings.TrimSpace(string(b))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
