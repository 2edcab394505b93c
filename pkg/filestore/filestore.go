package filestore

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/igolaizola/goatmusic/pkg/filestore/local"
	"github.com/igolaizola/goatmusic/pkg/filestore/s3"
)

type fs interface {
	Upload(ctx context.Context, r io.Reader, name, contentType string) error
	Download(ctx context.Context, w io.Writer, name string) error
	URL(ctx context.Context, name string) (string, error)
}

// Store archives finished tracks.
type Store struct {
	fs     fs
	client *http.Client
	debug  bool
}

// New returns a file store. Supported types are "local" (conn is the root
// directory) and "s3" (conn is key:secret@bucket.region, optionally followed
// by @endpoint for s3 compatible services).
func New(typ, conn string, debug bool) (*Store, error) {
	var fs fs
	switch typ {
	case "s3":
		cfg, err := parseS3(conn)
		if err != nil {
			return nil, err
		}
		cfg.Prefix = "tracks"
		cfg.Debug = debug
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		candidate, err := s3.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "local":
		candidate, err := local.New(conn, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{
		fs: fs,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		debug: debug,
	}, nil
}

func parseS3(conn string) (*s3.Config, error) {
	split := strings.SplitN(conn, "@", 3)
	if len(split) < 2 {
		return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
	}
	auth := strings.SplitN(split[0], ":", 2)
	if len(auth) != 2 {
		return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
	}
	loc := strings.SplitN(split[1], ".", 2)
	if len(loc) != 2 || loc[0] == "" || loc[1] == "" {
		return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
	}
	cfg := &s3.Config{
		Key:    auth[0],
		Secret: auth[1],
		Bucket: loc[0],
		Region: loc[1],
	}
	if len(split) == 3 {
		cfg.Endpoint = split[2]
	}
	if cfg.Region == "tebi" {
		cfg.Region = "de"
		if cfg.Endpoint == "" {
			cfg.Endpoint = "https://s3.tebi.io"
		}
	}
	return cfg, nil
}

// Archive downloads the audio url and stores it as the task mp3.
func (s *Store) Archive(ctx context.Context, id, audioURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return fmt.Errorf("filestore: couldn't create request for %s: %w", id, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("filestore: couldn't download %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("filestore: couldn't download %s: status %d", id, resp.StatusCode)
	}
	if err := s.fs.Upload(ctx, resp.Body, MP3(id), "audio/mpeg"); err != nil {
		return fmt.Errorf("filestore: couldn't archive %s: %w", id, err)
	}
	if s.debug {
		log.Printf("filestore: archived %s\n", MP3(id))
	}
	return nil
}

// GetMP3 copies the archived track of a task to w.
func (s *Store) GetMP3(ctx context.Context, w io.Writer, id string) error {
	return s.fs.Download(ctx, w, MP3(id))
}

// URL returns a url where the archived track of a task can be fetched.
func (s *Store) URL(ctx context.Context, id string) (string, error) {
	return s.fs.URL(ctx, MP3(id))
}

func MP3(id string) string {
	return id + ".mp3"
}
