package ngrok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/igolaizola/goatmusic/pkg/poll"
)

const (
	// DefaultBinPath is the path to the ngrok binary.
	DefaultBinPath = "ngrok"
	// DefaultAPIURL is the local ngrok agent api.
	DefaultAPIURL = "http://localhost:4040"
)

var errNoTunnel = errors.New("ngrok: tunnel not ready")

type Config struct {
	BinPath  string
	APIURL   string
	Attempts int
	Interval time.Duration
	Debug    bool
}

type tunnelsResponse struct {
	Tunnels []struct {
		Name      string `json:"name"`
		PublicURL string `json:"public_url"`
		Proto     string `json:"proto"`
		Config    struct {
			Addr string `json:"addr"`
		} `json:"config"`
	} `json:"tunnels"`
}

// Run starts an http tunnel to the local port and returns its public https
// url. The tunnel lives until the returned cancel func is called.
func Run(ctx context.Context, cfg *Config, port string) (string, context.CancelFunc, error) {
	bin := cfg.BinPath
	if bin == "" {
		bin = DefaultBinPath
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		cmd := exec.CommandContext(ctx, bin, "http", port, "--log", "stdout")
		data, err := cmd.CombinedOutput()
		if err != nil && ctx.Err() == nil {
			log.Println(fmt.Errorf("ngrok: %w: %s", err, string(data)))
		}
	}()
	u, err := PublicURL(ctx, cfg, port)
	if err != nil {
		cancel()
		return "", nil, err
	}
	log.Printf("ngrok: tunnel %s -> :%s\n", u, port)
	return u, cancel, nil
}

// PublicURL waits until the ngrok agent reports a tunnel for the port.
func PublicURL(ctx context.Context, cfg *Config, port string) (string, error) {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 20
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
	}
	fetch := func(ctx context.Context) (string, error) {
		u, err := lookup(ctx, client, apiURL, port)
		if err != nil && cfg.Debug {
			log.Printf("ngrok: %v\n", err)
		}
		return u, nil
	}
	u, err := poll.Until(ctx, fetch, func(u string) bool { return u != "" }, attempts, interval)
	if errors.Is(err, poll.ErrTimeout) {
		return "", fmt.Errorf("ngrok: no tunnel for port %s: %w", port, errNoTunnel)
	}
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't get tunnel: %w", err)
	}
	return u, nil
}

func lookup(ctx context.Context, client *http.Client, apiURL, port string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(apiURL, "/")+"/api/tunnels", nil)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't reach agent: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ngrok: couldn't read response: %w", err)
	}
	var tr tunnelsResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("ngrok: couldn't unmarshal response (%s): %w", string(data), err)
	}
	var fallback string
	for _, t := range tr.Tunnels {
		if tunnelPort(t.Config.Addr) != port {
			continue
		}
		switch {
		case strings.HasPrefix(t.PublicURL, "https://"):
			return t.PublicURL, nil
		case strings.HasPrefix(t.PublicURL, "http://"):
			fallback = t.PublicURL
		}
	}
	if fallback == "" {
		return "", errNoTunnel
	}
	return fallback, nil
}

// tunnelPort returns the port of an agent address such as
// "http://localhost:3000" or "3000".
func tunnelPort(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.Port() != "" {
		return u.Port()
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}
