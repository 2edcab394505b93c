package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatCompletion(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  [Chorus]\nGOAT  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := New(&Config{Token: "token", Model: "test-model", BaseURL: srv.URL})
	text, err := c.ChatCompletion(context.Background(), "escribe una canción")
	if err != nil {
		t.Fatalf("ChatCompletion() err = %v", err)
	}
	if text != "[Chorus]\nGOAT" {
		t.Fatalf("ChatCompletion() = %q; want trimmed content", text)
	}
	if got.Model != "test-model" || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("request = %+v", got)
	}
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer srv.Close()

	c := New(&Config{Token: "token", BaseURL: srv.URL})
	if _, err := c.ChatCompletion(context.Background(), "hola"); err == nil {
		t.Fatalf("ChatCompletion() err = nil; want error")
	}
}
