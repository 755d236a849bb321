package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/gameradar/pkg/logger"
)

// HTTPClient wraps http.Client with a timeout and an optional shared
// request budget.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

// newHTTPClient creates a client. A non-positive perSecond disables throttling.
func newHTTPClient(timeout time.Duration, perSecond float64) *HTTPClient {
	c := &HTTPClient{client: &http.Client{Timeout: timeout}}
	if perSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), maxInt(1, int(perSecond)))
	}
	return c
}

func (c *HTTPClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with an optional JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// getJSON fetches url and decodes a 200 response into v.
func (c *HTTPClient) getJSON(ctx context.Context, url string, v interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, http.StatusOK, v)
}

// decodeResponse reads and closes the body, then decodes it into v when the
// status matches want.
func decodeResponse(resp *http.Response, want int, v interface{}) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// progress logs counters at most once per ProgressInterval.
type progress struct {
	last atomic.Int64
}

func (p *progress) due() bool {
	now := time.Now().UnixNano()
	last := p.last.Load()
	if now-last < int64(ProgressInterval) {
		return false
	}
	return p.last.CompareAndSwap(last, now)
}

// submitPlayers posts players concurrently. Individual failures are counted,
// not returned.
func submitPlayers(ctx context.Context, cfg *Config, client *HTTPClient, players []Player, stats *Stats) error {
	log := logger.Get().Named("seed")
	log.Info(ctx, "submitting players", logger.Int("players", len(players)), logger.Int("workers", cfg.Workers))

	url := cfg.BaseURL + "/players"
	var (
		submitted atomic.Int64
		accepted  atomic.Int64
		failed    atomic.Int64
		report    progress
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(cfg.Workers, 1))
	for i := range players {
		if gctx.Err() != nil {
			break
		}
		p := players[i]
		g.Go(func() error {
			if err := submitSinglePlayer(gctx, client, url, p); err != nil {
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "submit failed", logger.String("playerID", p.ID), logger.Error(err))
				}
			} else {
				accepted.Add(1)
			}
			total := submitted.Add(1)
			if report.due() {
				log.Info(gctx, "submission progress",
					logger.Int("submitted", int(total)),
					logger.Int("total", len(players)),
					logger.Int("accepted", int(accepted.Load())),
					logger.Int("failed", int(failed.Load())))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.PlayersSubmitted = int(submitted.Load())
	stats.PlayersAccepted = int(accepted.Load())
	stats.PlayersFailed = int(failed.Load())

	log.Info(ctx, "player submission completed",
		logger.Int("accepted", stats.PlayersAccepted),
		logger.Int("failed", stats.PlayersFailed))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submission interrupted: %w", err)
	}
	return nil
}

// submitSinglePlayer posts one player and checks the acknowledgement.
func submitSinglePlayer(ctx context.Context, client *HTTPClient, url string, p Player) error {
	resp, err := client.Post(ctx, url, p)
	if err != nil {
		return err
	}
	var ack AckResponse
	if err := decodeResponse(resp, http.StatusAccepted, &ack); err != nil {
		return err
	}
	if ack.PlayerID != "" && ack.PlayerID != p.ID {
		return fmt.Errorf("acknowledged %q for %q", ack.PlayerID, p.ID)
	}
	return nil
}
