package dam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrMalformedResponse means the DAM answered with a body of no known shape
var ErrMalformedResponse = errors.New("malformed DAM response")

// APIError is a non-success DAM response
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("DAM API error: status %d: %s", e.StatusCode, e.Message)
}

// FailureReason classifies the response for retry decisions
func (e *APIError) FailureReason() domain.FailureReason {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ReasonRateLimited
	case e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone:
		return domain.ReasonNotFound
	case e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity:
		return domain.ReasonValidation
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500:
		return domain.ReasonNetwork
	default:
		return domain.ReasonUnknown
	}
}

// ClientOptions tunes DAM HTTP clients
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // Outbound ceiling per tenant, 0 disables
	Burst             int
	HTTPClient        *http.Client
}

// Client is a DAM REST API client for one tenant
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates a DAM client
func NewClient(baseURL, token string, opts ClientOptions, logger zerolog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

// ListAssets returns one page of media carrying any of the filter's tags
func (c *Client) ListAssets(ctx context.Context, filter ports.AssetFilter, page int, limit int) (*ports.AssetPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("total", "1")
	if len(filter.Tags) > 0 {
		query.Set("tags", strings.Join(filter.Tags, ","))
	}

	body, err := c.get(ctx, "/api/v4/media", query)
	if err != nil {
		return nil, err
	}

	decoded := decodeList(body)
	if decoded.Shape == shapeMalformed {
		c.logger.Warn().Int("page", page).Int("bytes", len(body)).Msg("DAM returned an unrecognised listing body")
		return nil, fmt.Errorf("failed to decode media page %d: %w", page, ErrMalformedResponse)
	}

	out := &ports.AssetPage{
		Items:   make([]domain.Asset, 0, len(decoded.Items)),
		Fetched: len(decoded.Items),
		Total:   decoded.Total,
	}
	for i, item := range decoded.Items {
		if item.ID == "" {
			position := (page-1)*limit + i
			out.Rejected = append(out.Rejected, ports.RejectedItem{
				Position: position,
				Message:  fmt.Sprintf("media at catalog position %d has no id", position),
			})
			continue
		}
		out.Items = append(out.Items, item.toAsset())
	}
	return out, nil
}

// GetAsset returns the current state of one asset, or nil when the DAM no longer has it
func (c *Client) GetAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	body, err := c.get(ctx, "/api/v4/media/"+url.PathEscape(assetID), url.Values{"versions": {"1"}})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.FailureReason() == domain.ReasonNotFound {
			return nil, nil
		}
		return nil, err
	}

	item, ok := decodeItem(body)
	if !ok {
		return nil, fmt.Errorf("failed to decode media %s: %w", assetID, ErrMalformedResponse)
	}
	asset := item.toAsset()
	return &asset, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for DAM rate limiter: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DAM request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call DAM: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read DAM response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if len(apiErr.Message) > 512 {
			apiErr.Message = apiErr.Message[:512]
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return nil, apiErr
	}
	return body, nil
}

// ClientFactory hands out one client per shop so each tenant keeps its own rate limiter
type ClientFactory struct {
	opts   ClientOptions
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*cachedClient
}

type cachedClient struct {
	baseURL string
	token   string
	client  *Client
}

// NewClientFactory creates a DAM client factory
func NewClientFactory(opts ClientOptions, logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		opts:    opts,
		logger:  logger,
		clients: make(map[string]*cachedClient),
	}
}

// ForShop returns the shop's DAM client, rebuilding it when the shop's settings change
func (f *ClientFactory) ForShop(shop *domain.Shop) (ports.DAMClient, error) {
	if !shop.DAMConfigured() {
		return nil, fmt.Errorf("shop %s has no DAM base URL or token: %w", shop.ID, domain.ErrConfiguration)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.clients[shop.ID]; ok && cached.baseURL == shop.DAM.BaseURL && cached.token == shop.DAM.APIToken {
		return cached.client, nil
	}
	client := NewClient(shop.DAM.BaseURL, shop.DAM.APIToken, f.opts, f.logger.With().Str("shopId", shop.ID).Logger())
	f.clients[shop.ID] = &cachedClient{baseURL: shop.DAM.BaseURL, token: shop.DAM.APIToken, client: client}
	return client, nil
}
