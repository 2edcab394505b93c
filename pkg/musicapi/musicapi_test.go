package musicapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTaskID(t *testing.T) {
	tests := []struct {
		raw    string
		wantID string
		wantOK bool
	}{
		{raw: `{"code":200,"data":{"taskId":"abc"}}`, wantID: "abc", wantOK: true},
		{raw: `{"data":{"task_id":"def"}}`, wantID: "def", wantOK: true},
		{raw: `{"data":{"id":"ghi"}}`, wantID: "ghi", wantOK: true},
		{raw: `{"taskId":"jkl"}`, wantID: "jkl", wantOK: true},
		{raw: `{"task_id":"mno"}`, wantID: "mno", wantOK: true},
		{raw: `{"id":12345}`, wantID: "12345", wantOK: true},
		{raw: `{"data":{"taskId":""},"id":"fallback"}`, wantID: "fallback", wantOK: true},
		{raw: `{"data":{"taskId":"first"},"taskId":"second"}`, wantID: "first", wantOK: true},
		{raw: `{"data":null}`},
		{raw: `{"code":200,"msg":"ok"}`},
		{raw: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := TaskID([]byte(tt.raw))
			if ok != tt.wantOK || got != tt.wantID {
				t.Fatalf("TaskID() = %q, %v; want %q, %v", got, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestParseModel(t *testing.T) {
	for _, s := range []string{"V3_5", "V4", "V4_5", "V4_5PLUS"} {
		if m, err := ParseModel(s); err != nil || string(m) != s {
			t.Fatalf("ParseModel(%q) = %q, %v; want %q, nil", s, m, err, s)
		}
	}
	if _, err := ParseModel("V9"); err == nil {
		t.Fatalf("ParseModel(V9) err = nil; want error")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status     Status
		failed     bool
		lyricsDone bool
	}{
		{status: StatusPending},
		{status: ""},
		{status: StatusSuccess, lyricsDone: true},
		{status: StatusTextSuccess, lyricsDone: true},
		{status: StatusCreateTaskFailed, failed: true, lyricsDone: true},
		{status: StatusSensitiveWordError, failed: true, lyricsDone: true},
		{status: "SOMETHING_NEW", lyricsDone: true},
	}
	for _, tt := range tests {
		if got := tt.status.Failed(); got != tt.failed {
			t.Fatalf("%q.Failed() = %v; want %v", tt.status, got, tt.failed)
		}
		if got := tt.status.LyricsDone(); got != tt.lyricsDone {
			t.Fatalf("%q.LyricsDone() = %v; want %v", tt.status, got, tt.lyricsDone)
		}
	}
}

func TestNoCredential(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL})
	if c.HasCredential() {
		t.Fatalf("HasCredential() = true; want false")
	}
	_, err := c.Generate(context.Background(), &GenerateRequest{})
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Generate() err = %v; want %v", err, ErrNoCredential)
	}
	if calls != 0 {
		t.Fatalf("upstream calls = %d; want 0", calls)
	}
}

func TestGenerate(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("request = %s %s; want POST /generate", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q; want %q", auth, "Bearer secret")
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &got); err != nil {
			t.Errorf("couldn't unmarshal body: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"t-1"}}`))
	}))
	defer srv.Close()

	c := New(&Config{APIKey: "secret", BaseURL: srv.URL + "/"})
	sub, err := c.Generate(context.Background(), &GenerateRequest{
		CustomMode: true,
		Model:      ModelV4,
		Style:      "Pop",
		Title:      "Mi Canción",
		Prompt:     "[Verse]\nla la",
	})
	if err != nil {
		t.Fatalf("Generate() err = %v; want nil", err)
	}
	if sub.TaskID != "t-1" {
		t.Fatalf("Generate() task id = %q; want %q", sub.TaskID, "t-1")
	}
	if got.CallBackURL != DefaultCallbackURL {
		t.Fatalf("callBackUrl = %q; want %q", got.CallBackURL, DefaultCallbackURL)
	}
	if !got.CustomMode || got.Instrumental || got.Model != ModelV4 {
		t.Fatalf("request = %+v; want custom, not instrumental, V4", got)
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		body    string
		wantMsg string
	}{
		{body: `{"code":401,"msg":"invalid key"}`, wantMsg: "invalid key"},
		{body: `{"error":"bad request"}`, wantMsg: "bad request"},
		{body: `gateway down`, wantMsg: "gateway down"},
	}
	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(&Config{APIKey: "k", BaseURL: srv.URL})
			_, err := c.GenerateRecord(context.Background(), "t-1")
			var serr *StatusError
			if !errors.As(err, &serr) {
				t.Fatalf("GenerateRecord() err = %v; want *StatusError", err)
			}
			if serr.Code != http.StatusUnauthorized || serr.Message != tt.wantMsg {
				t.Fatalf("StatusError = %d %q; want %d %q", serr.Code, serr.Message, http.StatusUnauthorized, tt.wantMsg)
			}
		})
	}
}

func TestGenerateRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate/record-info" || r.URL.Query().Get("taskId") != "t 1" {
			t.Errorf("request = %s; want /generate/record-info?taskId=t 1", r.URL)
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"t 1","status":"FIRST_SUCCESS","response":{"sunoData":[{"id":"a","streamAudioUrl":"https://s/1","imageUrl":"https://i/1","title":"GOAT","duration":181.5}]}}}`))
	}))
	defer srv.Close()

	c := New(&Config{APIKey: "k", BaseURL: srv.URL})
	rec, err := c.GenerateRecord(context.Background(), "t 1")
	if err != nil {
		t.Fatalf("GenerateRecord() err = %v; want nil", err)
	}
	if rec.Status != StatusFirstSuccess {
		t.Fatalf("status = %q; want %q", rec.Status, StatusFirstSuccess)
	}
	tr := rec.First()
	if tr == nil {
		t.Fatalf("First() = nil; want track")
	}
	if tr.StreamAudioURL != "https://s/1" || tr.AudioURL != "" || tr.Duration != 181.5 {
		t.Fatalf("track = %+v; want stream only", tr)
	}
	if len(rec.Raw) == 0 {
		t.Fatalf("raw is empty")
	}
}

func TestLyricsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lyrics":
			_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"l-1"}}`))
		case "/lyrics/record-info":
			_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"l-1","status":"SUCCESS","response":{"data":[{"text":"hola","status":"complete"}]}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(&Config{APIKey: "k", BaseURL: srv.URL})
	sub, err := c.CreateLyrics(context.Background(), "tema")
	if err != nil {
		t.Fatalf("CreateLyrics() err = %v; want nil", err)
	}
	rec, err := c.LyricsRecord(context.Background(), sub.TaskID)
	if err != nil {
		t.Fatalf("LyricsRecord() err = %v; want nil", err)
	}
	if rec.Status != StatusSuccess || len(rec.Response) == 0 {
		t.Fatalf("LyricsRecord() = %+v; want SUCCESS with response", rec)
	}
}
