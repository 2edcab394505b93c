package openai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	gpt "github.com/sashabaranov/go-openai"
)

type Client struct {
	client *gpt.Client
	model  string
	debug  bool
}

type Config struct {
	Debug   bool
	Token   string
	Model   string
	BaseURL string
	Client  *http.Client
}

func New(cfg *Config) *Client {
	c := gpt.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	c.HTTPClient = cfg.Client
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	model := cfg.Model
	if model == "" {
		model = gpt.GPT4Turbo
	}
	return &Client{
		client: gpt.NewClientWithConfig(c),
		model:  model,
		debug:  cfg.Debug,
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// ChatCompletion sends a single user message and returns the first choice.
func (c *Client) ChatCompletion(ctx context.Context, msg string) (string, error) {
	c.log("openai: chat completion %s", msg)
	resp, err := c.client.CreateChatCompletion(ctx, gpt.ChatCompletionRequest{
		Model: c.model,
		Messages: []gpt.ChatCompletionMessage{
			{
				Role:    gpt.ChatMessageRoleUser,
				Content: msg,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: couldn't create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.log("openai: chat completion response %s", content)
	return content, nil
}
