package local

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
)

type Store struct {
	root  string
	debug bool
}

func New(root string, debug bool) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("local: empty root directory")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("local: couldn't create %q: %w", root, err)
	}
	return &Store{root: root, debug: debug}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, filepath.Base(name))
}

// Upload writes r to a temporary file that is renamed once complete, so a
// partial download never shows up under the final name.
func (s *Store) Upload(ctx context.Context, r io.Reader, name, contentType string) error {
	dst := s.path(name)
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("local: couldn't create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("local: couldn't write %q: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local: couldn't close %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("local: couldn't rename %q to %q: %w", tmp.Name(), dst, err)
	}
	if s.debug {
		log.Println("local: stored", dst)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, w io.Writer, name string) error {
	src := s.path(name)
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("local: couldn't open %q: %w", src, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("local: couldn't copy %q: %w", src, err)
	}
	return nil
}

func (s *Store) URL(ctx context.Context, name string) (string, error) {
	src := s.path(name)
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("local: couldn't stat %q: %w", src, err)
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", fmt.Errorf("local: couldn't get absolute path of %q: %w", src, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
