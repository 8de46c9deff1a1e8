// Package input normalises commands arriving as typed text, transcribed
// speech or file content into a single whitespace-collapsed line.
package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
	ModalityFile  Modality = "file"
)

var ErrEmptyInput = errors.New("input is empty")

// UserCommand is normalised input ready for matching. RawText is never empty.
type UserCommand struct {
	RawText    string    `json:"raw_text"`
	Modality   Modality  `json:"modality"`
	ReceivedAt time.Time `json:"received_at"`
}

func normalize(s string, m Modality) (UserCommand, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return UserCommand{}, ErrEmptyInput
	}
	return UserCommand{RawText: s, Modality: m, ReceivedAt: time.Now()}, nil
}

// FromText trims and collapses whitespace.
func FromText(s string) (UserCommand, error) {
	return normalize(s, ModalityText)
}

// Transcriber converts recorded speech to text. Speech recognition itself
// lives outside this module.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// FromVoice transcribes audio and normalises the result.
func FromVoice(ctx context.Context, audio io.Reader, t Transcriber) (UserCommand, error) {
	if t == nil {
		return UserCommand{}, errors.New("no transcriber configured")
	}
	text, err := t.Transcribe(ctx, audio)
	if err != nil {
		return UserCommand{}, fmt.Errorf("transcribe: %w", err)
	}
	return normalize(text, ModalityVoice)
}

var strict = bluemonday.StrictPolicy()

// sanitize strips all markup. bluemonday escapes what it keeps, so entities
// are decoded again for matching.
func sanitize(s string) string {
	return html.UnescapeString(strict.Sanitize(s))
}

// FromFile reads a command from file content. HTML is reduced to its main
// text with readability and stripped of markup. Anything else is plain text
// and keeps angle brackets, so "Bob <bob@example.com>" survives.
func FromFile(name string, data []byte) (UserCommand, error) {
	if !utf8.Valid(data) {
		return UserCommand{}, fmt.Errorf("%s: not valid UTF-8", name)
	}
	if isHTML(name, data) {
		text, err := articleText(bytes.NewReader(data), &url.URL{Scheme: "file", Path: name})
		if err != nil {
			return UserCommand{}, fmt.Errorf("%s: %w", name, err)
		}
		return normalize(text, ModalityFile)
	}
	return normalize(string(data), ModalityFile)
}

func isHTML(name string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	head := strings.ToLower(string(data[:min(len(data), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func articleText(r io.Reader, page *url.URL) (string, error) {
	article, err := readability.FromReader(r, page)
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}
	return sanitize(article.TextContent), nil
}

// Fetcher loads a command from a web page, for commands kept in a shared
// document.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		MaxBytes:  1 << 20,
	}
}

// FromURL fetches rawURL and extracts its main text.
func (f *Fetcher) FromURL(ctx context.Context, rawURL string) (UserCommand, error) {
	page, err := url.Parse(rawURL)
	if err != nil {
		return UserCommand{}, fmt.Errorf("parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return UserCommand{}, err
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return UserCommand{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return UserCommand{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	text, err := articleText(io.LimitReader(resp.Body, f.MaxBytes), page)
	if err != nil {
		return UserCommand{}, err
	}
	return normalize(text, ModalityFile)
}
