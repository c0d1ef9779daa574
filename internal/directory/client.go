package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheKey holds the last successful directory response.
const CacheKey = "directory:employees"

// Cache is the subset of redis.Cmdable the client uses.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Client fetches the employee list from the staff directory service.
type Client struct {
	endpoint string
	http     *http.Client
	cache    Cache
	ttl      time.Duration
	logger   *zap.Logger
}

// Config for the directory client. Cache may be nil.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Cache    Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cfg.Cache,
		ttl:      cfg.CacheTTL,
		logger:   cfg.Logger.Named("directory"),
	}
}

// List returns the staff directory. Any failure is logged and produces an
// empty list; the request is not retried.
func (c *Client) List(ctx context.Context) []Employee {
	if cached, ok := c.fromCache(ctx); ok {
		return cached
	}

	employees, err := c.fetch(ctx)
	if err != nil {
		c.logger.Error("failed to fetch employees", zap.String("endpoint", c.endpoint), zap.Error(err))
		return []Employee{}
	}

	c.store(ctx, employees)
	return employees
}

func (c *Client) fetch(ctx context.Context) ([]Employee, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var employees []Employee
	if err := json.NewDecoder(resp.Body).Decode(&employees); err != nil {
		return nil, fmt.Errorf("decoding employees: %w", err)
	}
	if employees == nil {
		employees = []Employee{}
	}
	return employees, nil
}

func (c *Client) fromCache(ctx context.Context) ([]Employee, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, CacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("directory cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var employees []Employee
	if err := json.Unmarshal(raw, &employees); err != nil {
		c.logger.Warn("discarding corrupt directory cache", zap.Error(err))
		return nil, false
	}
	return employees, true
}

func (c *Client) store(ctx context.Context, employees []Employee) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(employees)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, CacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("directory cache write failed", zap.Error(err))
	}
}
