package lyrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPromptChars is the hard cap for prompts sent to the lyrics endpoint.
	MaxPromptChars = 200
	// MaxLines is the maximum number of lines kept from generated lyrics.
	MaxLines = 24
	// MaxChars is the maximum number of characters kept from generated lyrics.
	MaxChars = 1000

	// DefaultTheme is used when the user didn't provide a theme.
	DefaultTheme = "identidad GOAT, tono emocionante"

	promptPrefix = "Genera una letra en español, con estructura [Verse]/[Chorus], tema: "
)

var ErrEmptyLyrics = errors.New("lyrics: success status but no text in response")

// BuildPrompt builds the lyrics prompt for the given theme and style.
// The result never exceeds MaxPromptChars characters. The theme is truncated
// first, the prefix and the style are kept whenever they fit.
func BuildPrompt(theme, style string) string {
	theme = oneLine(theme)
	style = oneLine(style)
	if theme == "" {
		theme = DefaultTheme
	}
	suffix := ", estilo " + style + "."
	if style == "" {
		suffix = "."
	}

	budget := MaxPromptChars - runes(promptPrefix) - runes(suffix)
	if budget < 0 {
		// Style alone doesn't fit, drop the theme and cut the style.
		theme = ""
		fixed := runes(promptPrefix) + runes(", estilo .")
		style = truncate(style, MaxPromptChars-fixed)
		suffix = ", estilo " + style + "."
		budget = 0
	}
	theme = strings.TrimRightFunc(truncate(theme, budget), unicode.IsSpace)
	return truncate(promptPrefix+theme+suffix, MaxPromptChars)
}

// Item is a candidate lyric returned by the lyrics record endpoint.
type Item struct {
	Text    string `json:"text"`
	Content string `json:"content"`
	Title   string `json:"title"`
	Status  string `json:"status"`
}

func (i Item) text() string {
	if i.Text != "" {
		return i.Text
	}
	return i.Content
}

// Response is the "response" object of a finished lyrics task.
// Two shapes are known: a lyricsData list or a data list.
type Response struct {
	LyricsData []Item `json:"lyricsData"`
	Data       []Item `json:"data"`
}

// Parse decodes a raw lyrics response.
func Parse(b []byte) (*Response, error) {
	var r Response
	if len(b) == 0 || string(b) == "null" {
		return &r, nil
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("lyrics: couldn't unmarshal response: %w", err)
	}
	return &r, nil
}

// Result is the lyric text and the optional suggested title.
type Result struct {
	Text  string
	Title string
}

// Extract picks the best candidate from the response and returns its text
// shortened with MakeShort.
func Extract(r *Response) (*Result, error) {
	if r == nil {
		return nil, ErrEmptyLyrics
	}
	items := r.LyricsData
	if len(items) == 0 {
		items = r.Data
	}
	if len(items) == 0 {
		return nil, ErrEmptyLyrics
	}
	pick := items[0]
	for _, it := range items {
		if strings.EqualFold(it.Status, "complete") && strings.TrimSpace(it.text()) != "" {
			pick = it
			break
		}
	}
	text := MakeShort(pick.text())
	if text == "" {
		return nil, ErrEmptyLyrics
	}
	return &Result{
		Text:  text,
		Title: strings.TrimSpace(pick.Title),
	}, nil
}

// MakeShort normalizes line endings, collapses runs of three or more blank
// lines into a single one and clamps the text to MaxLines lines and MaxChars
// characters.
func MakeShort(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var lines []string
	var blanks []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRightFunc(l, unicode.IsSpace)
		if l == "" {
			blanks = append(blanks, l)
			continue
		}
		if len(blanks) >= 3 {
			blanks = blanks[:1]
		}
		lines = append(lines, blanks...)
		blanks = blanks[:0]
		lines = append(lines, l)
	}

	if len(lines) > MaxLines {
		lines = lines[:MaxLines]
	}
	out := strings.Join(lines, "\n")
	out = truncate(out, MaxChars)
	return strings.TrimRightFunc(out, unicode.IsSpace)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	var i int
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
