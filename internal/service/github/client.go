package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/deploytrack/deploytrack/internal/cache"
	"github.com/deploytrack/deploytrack/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Client looks up repository popularity metrics from the external stats
// service, with a read-through cache in front of it.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   cache.Store
	ttl     time.Duration
	logger  *slog.Logger
}

// New constructs a Client. An empty apiKey disables lookups entirely: every
// call yields no data without touching the network.
func New(baseURL, apiKey string, store cache.Store, ttl time.Duration, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	if logger != nil {
		logger = logger.With("component", "github_stats")
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    client,
		cache:   store,
		ttl:     ttl,
		logger:  logger,
	}
}

// Stats returns popularity metrics for one repository. Cache hits skip the
// external call; misses are fetched, cached with the configured TTL and
// returned. Failed lookups are not cached.
func (c *Client) Stats(ctx context.Context, repo string) (*domain.GithubStats, error) {
	if c.apiKey == "" {
		return nil, nil
	}
	cacheKey := "repo-" + repo
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
			var stats domain.GithubStats
			if err := json.Unmarshal(cached, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	raw, err := c.fetch(ctx, repo)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		_ = c.cache.SetEx(ctx, cacheKey, raw, c.ttl)
	}
	var stats domain.GithubStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	return &stats, nil
}

// EnrichAll issues one concurrent lookup per accumulator and merges results.
// Each lookup settles independently; a failure leaves that accumulator
// without stats and never aborts the batch.
func (c *Client) EnrichAll(ctx context.Context, apps []*domain.AppSummary) {
	var wg sync.WaitGroup
	for _, app := range apps {
		wg.Add(1)
		go func(app *domain.AppSummary) {
			defer wg.Done()
			stats, err := c.Stats(ctx, app.URL)
			if err != nil {
				if c.logger != nil {
					c.logger.Warn("enrichment lookup failed", "repo", app.URL, "error", err)
				}
				return
			}
			app.GithubStats = stats
		}(app)
	}
	wg.Wait()
}

func (c *Client) fetch(ctx context.Context, repo string) ([]byte, error) {
	query := url.Values{}
	query.Set("apiKey", c.apiKey)
	query.Set("repo", repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send stats request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats request failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stats response: %w", err)
	}
	return body, nil
}
