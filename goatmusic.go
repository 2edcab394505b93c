package goatmusic

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/igolaizola/goatmusic/pkg/cmd/web"
	"github.com/igolaizola/goatmusic/pkg/musicapi"
	"github.com/igolaizola/goatmusic/pkg/player"
	"github.com/igolaizola/goatmusic/pkg/qr"
	"github.com/igolaizola/goatmusic/pkg/song"
)

type Config struct {
	APIKey  string
	APIBase string
	Proxy   string
	Wait    time.Duration
	Timeout time.Duration
	Debug   bool
}

// GenerateSong generates a song, waits for the final audio and downloads it
// to output, which can be a file or a folder.
func GenerateSong(ctx context.Context, cfg *Config, req *song.Request, output string) error {
	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	client := musicapi.New(&musicapi.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.APIBase,
		Debug:   cfg.Debug,
		Client:  httpClient,
	})
	svc := song.New(&song.Config{
		Client: client,
		Debug:  cfg.Debug,
	})
	defer svc.Wait()

	id, err := svc.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("couldn't generate song: %w", err)
	}
	log.Println("task:", id)

	tracker := player.Track(ctx, player.TrackerConfig{
		Provider:    svc,
		TaskID:      id,
		Interval:    cfg.Wait,
		Timeout:     cfg.Timeout,
		AutoAdvance: -1,
		OnUpdate: func(v *song.TaskView) {
			log.Println("status:", v.Status)
		},
		Debug: cfg.Debug,
	})
	res, err := tracker.Wait()
	if err != nil {
		return fmt.Errorf("couldn't wait for song: %w", err)
	}
	if res.View == nil || res.View.Track == nil || res.View.Track.AudioURL == "" {
		return fmt.Errorf("task %s finished without audio", id)
	}
	track := res.View.Track
	log.Println("title:", track.Title)
	log.Println("url:", track.AudioURL)
	log.Println("image:", track.ImageURL)
	if code, err := qr.Text(track.AudioURL); err == nil {
		fmt.Println(code)
	}

	if output == "" {
		return nil
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		output = filepath.Join(output, web.Slugify(track.Title)+".mp3")
	}
	if err := download(ctx, httpClient, track.AudioURL, output); err != nil {
		return err
	}
	log.Println("saved:", output)
	return nil
}

func download(ctx context.Context, client *http.Client, u, output string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("couldn't create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("couldn't download audio: status %d", resp.StatusCode)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("couldn't create output file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("couldn't write output file: %w", err)
	}
	return nil
}
