// Package rates fetches advisory exchange-rate suggestions from an external
// provider.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	appbilling "github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateScale is the precision of inverted provider quotes
const rateScale = 6

// Cache stores rate tables between provider calls
type Cache interface {
	Get(ctx context.Context, key string) (map[string]decimal.Decimal, bool, error)
	Set(ctx context.Context, key string, rates map[string]decimal.Decimal) error
}

// ProviderError is a non-2xx provider response
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("rate provider returned %d: %s", e.StatusCode, e.Body)
}

// ClientConfig configures the provider client
type ClientConfig struct {
	// BaseURL of a provider serving GET /latest?base=XXX&symbols=A,B
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerMinute caps outbound calls; zero disables limiting
	RequestsPerMinute int
	Cache             Cache
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client suggests rates from the provider's latest quotes
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	logger     *zap.Logger
}

// Ensure Client implements RateSuggester
var _ appbilling.RateSuggester = (*Client)(nil)

// NewClient creates a provider client
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("rates: provider URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("rates: invalid provider URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		cache:      cfg.Cache,
		logger:     logger,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1+cfg.RequestsPerMinute/10)
	}
	return c, nil
}

// latestResponse is the provider payload: one unit of Base buys Rates[X] of X
type latestResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Suggest returns, for each source, how many units of target one unit of
// the source buys. The provider quotes target-based rates, which are
// inverted here. Sources equal to target are quoted as 1.
func (c *Client) Suggest(ctx context.Context, target valueobject.Currency, sources []valueobject.Currency) (map[valueobject.Currency]decimal.Decimal, error) {
	result := make(map[valueobject.Currency]decimal.Decimal, len(sources))

	wanted := make([]string, 0, len(sources))
	seen := make(map[valueobject.Currency]bool, len(sources))
	for _, src := range sources {
		if seen[src] {
			continue
		}
		seen[src] = true
		if src == target {
			result[src] = decimal.NewFromInt(1)
			continue
		}
		wanted = append(wanted, src.String())
	}
	if len(wanted) == 0 {
		return result, nil
	}
	sort.Strings(wanted)

	quotes, err := c.quotes(ctx, target.String(), wanted)
	if err != nil {
		return nil, err
	}

	for _, code := range wanted {
		q, ok := quotes[code]
		if !ok || !q.IsPositive() {
			// Omitted: caller reports the currency as unquoted
			continue
		}
		result[valueobject.Currency(code)] = decimal.NewFromInt(1).DivRound(q, rateScale)
	}
	return result, nil
}

// quotes returns target-based rates, from cache when fresh
func (c *Client) quotes(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, error) {
	key := base + ":" + strings.Join(symbols, ",")
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("Rate cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	quotes, err := c.fetch(ctx, base, symbols)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, quotes); err != nil {
			c.logger.Warn("Rate cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return quotes, nil
}

func (c *Client) fetch(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rates: waiting for provider quota: %w", err)
		}
	}

	q := url.Values{}
	q.Set("base", base)
	q.Set("symbols", strings.Join(symbols, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("rates: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates: provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("rates: decode provider response: %w", err)
	}
	if payload.Base != "" && !strings.EqualFold(payload.Base, base) {
		return nil, fmt.Errorf("rates: provider answered for base %s, asked %s", payload.Base, base)
	}

	quotes := make(map[string]decimal.Decimal, len(payload.Rates))
	for code, r := range payload.Rates {
		quotes[strings.ToUpper(code)] = r
	}

	c.logger.Debug("Fetched rate quotes",
		zap.String("base", base),
		zap.Strings("symbols", symbols),
		zap.String("date", payload.Date),
		zap.Duration("duration", time.Since(start)),
	)
	return quotes, nil
}
