package qr

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
)

func TestPNG(t *testing.T) {
	b, err := PNG("https://kiosk.example.com/api/download?src=https%3A%2F%2Fa%2F1.mp3", 256)
	if err != nil {
		t.Fatalf("PNG() err = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("png.Decode() err = %v", err)
	}
	if w := img.Bounds().Dx(); w != 256 {
		t.Fatalf("PNG() width = %d; want 256", w)
	}
	if _, err := PNG("", 0); err == nil {
		t.Fatalf("PNG(\"\") err = nil; want error")
	}
}

func TestText(t *testing.T) {
	s, err := Text("https://a/1.mp3")
	if err != nil {
		t.Fatalf("Text() err = %v", err)
	}
	if len(strings.Split(strings.TrimSpace(s), "\n")) < 10 {
		t.Fatalf("Text() = %q; want a multi line block", s)
	}
	if _, err := Text(""); err == nil {
		t.Fatalf("Text(\"\") err = nil; want error")
	}
}
