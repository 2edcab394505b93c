package web

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/igolaizola/goatmusic/pkg/cache"
	"github.com/igolaizola/goatmusic/pkg/filestore"
	"github.com/igolaizola/goatmusic/pkg/metrics"
	"github.com/igolaizola/goatmusic/pkg/musicapi"
	"github.com/igolaizola/goatmusic/pkg/ngrok"
	"github.com/igolaizola/goatmusic/pkg/openai"
	"github.com/igolaizola/goatmusic/pkg/song"
	"github.com/igolaizola/goatmusic/pkg/storage"
	"github.com/igolaizola/goatmusic/pkg/survey"
)

type Config struct {
	Debug bool
	Addr  string

	APIKey       string
	APIBase      string
	DefaultModel string
	CallbackURL  string

	LyricsSource string
	OpenAIKey    string
	OpenAIModel  string

	DBType    string
	DBConn    string
	FSType    string
	FSConn    string
	RedisAddr string
	CacheTTL  time.Duration

	PublicURL   string
	Ngrok       bool
	Static      string
	Credentials map[string]string
}

// Serve starts the kiosk API server.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}

	publicURL := cfg.PublicURL
	if cfg.Ngrok && publicURL == "" {
		u, stop, err := ngrok.Run(ctx, &ngrok.Config{Debug: cfg.Debug}, strconv.Itoa(port))
		if err != nil {
			return fmt.Errorf("web: %w", err)
		}
		defer stop()
		publicURL = u
	}

	if cfg.APIKey == "" {
		log.Println("web: MUSIC_API_KEY not set, song generation will fail")
	}
	var model musicapi.Model
	if cfg.DefaultModel != "" {
		m, err := musicapi.ParseModel(cfg.DefaultModel)
		if err != nil {
			return fmt.Errorf("web: %w", err)
		}
		model = m
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("web: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("web: couldn't start orm store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("web: couldn't migrate orm store: %w", err)
	}

	m := metrics.New()

	client := musicapi.New(&musicapi.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.APIBase,
		CallbackURL: cfg.CallbackURL,
		Debug:       cfg.Debug,
	})

	var src song.LyricsSource
	switch cfg.LyricsSource {
	case "", "upstream":
		src = song.NewUpstreamLyrics(client, 0, 0, cfg.Debug)
	case "openai":
		if cfg.OpenAIKey == "" {
			return fmt.Errorf("web: openai lyrics source requires an openai key")
		}
		src = song.NewOpenAILyrics(openai.New(&openai.Config{
			Debug: cfg.Debug,
			Token: cfg.OpenAIKey,
			Model: cfg.OpenAIModel,
		}))
	default:
		return fmt.Errorf("web: unknown lyrics source %q", cfg.LyricsSource)
	}

	var c interface {
		song.Cache
		io.Closer
	}
	if cfg.RedisAddr != "" {
		candidate, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("web: %w", err)
		}
		c = candidate
	} else {
		c = cache.NewMemory(cfg.CacheTTL)
	}
	defer c.Close()

	var fs *filestore.Store
	var archiver song.Archiver
	if cfg.FSType != "" {
		fs, err = filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("web: couldn't create file storage: %w", err)
		}
		archiver = fs
	}

	songs := song.New(&song.Config{
		Client:       client,
		Lyrics:       src,
		Recorder:     &taskRecorder{store: store},
		Cache:        c,
		Archiver:     archiver,
		Metrics:      m,
		DefaultModel: model,
		Debug:        cfg.Debug,
	})
	defer songs.Wait()

	srv := NewServer(&ServerConfig{
		Songs:       songs,
		Surveys:     survey.New(store, m, nil),
		Tasks:       store,
		Archive:     fs,
		Metrics:     m,
		PublicURL:   publicURL,
		Credentials: cfg.Credentials,
		Static:      cfg.Static,
		Debug:       cfg.Debug,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("web: starting server on %s\n", note)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("web: failed to start server: %v\n", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("web: couldn't shutdown server: %v\n", err)
	}
	return nil
}

// taskRecorder persists song snapshots in the orm store.
type taskRecorder struct {
	store *storage.Store
}

func (t *taskRecorder) SaveTask(ctx context.Context, s *song.Snapshot) error {
	return t.store.UpsertTask(ctx, &storage.Task{
		ID:             s.ID,
		Model:          s.Model,
		Style:          s.Style,
		Title:          s.Title,
		Status:         s.Status,
		StreamAudioURL: s.StreamAudioURL,
		AudioURL:       s.AudioURL,
		ImageURL:       s.ImageURL,
		Duration:       s.Duration,
		Archived:       s.Archived,
	})
}
