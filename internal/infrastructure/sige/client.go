package sige

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultPageSize    = 200
	defaultMaxAttempts = 3
	// maxPages bounds a catalog dump whose paging never terminates
	maxPages = 5000
	// maxErrorBody is how much of an error response is kept for logs
	maxErrorBody = 1024
)

// Config holds configuration for the SIGE client
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	PageSize      int
	MaxAttempts   int
	Debug         bool
	Logger        logrus.FieldLogger
}

// Client handles communication with the SIGE REST API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	tokens      domain.TokenSource
	rateLimiter *rate.Limiter
	pageSize    int
	maxAttempts int
	debug       bool
	logger      logrus.FieldLogger
	backoff     func(attempt int) time.Duration
}

// NewClient creates a new SIGE API client
func NewClient(config Config, tokens domain.TokenSource) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// SIGE throttles bursts of balance queries; 5 requests/sec with a burst of 10 stays clear of it
	limit := rate.Limit(config.RatePerSecond)
	if config.RatePerSecond <= 0 {
		limit = rate.Limit(5)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 10
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		tokens:      tokens,
		rateLimiter: rate.NewLimiter(limit, burst),
		pageSize:    pageSize,
		maxAttempts: maxAttempts,
		debug:       config.Debug,
		logger:      logger.WithField("component", "sige"),
		backoff:     exponentialBackoff,
	}
}

// SetDebug enables or disables debug logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

func (c *Client) debugLog(format string, args ...any) {
	if c.debug {
		c.logger.Debugf("[SIGE] "+format, args...)
	}
}

// exponentialBackoff returns the wait before retrying the given attempt: 500ms, 1s, 2s, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// readLimitedBody reads at most limit bytes of an error response
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// retryable reports whether a status code is worth another attempt
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// get executes an authenticated GET with rate limiting and retries on 429 and 5xx
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	token := ""
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrAuthentication) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
		}
		token = t
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domain.ErrRemoteAPIFailure, ctx.Err())
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "sigesync/1.0")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		c.debugLog("GET %s (attempt %d)", path, attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", domain.ErrRemoteAPIFailure, err)
			c.logger.WithError(err).Warnf("[SIGE] request error (attempt %d)", attempt)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: reading body: %v", domain.ErrRemoteAPIFailure, err)
			}
			return body, nil
		}

		body, _ := readLimitedBody(resp.Body, maxErrorBody)
		resp.Body.Close()
		entry := c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "path": path})

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			entry.Error("[SIGE] token rejected")
			return nil, fmt.Errorf("%w: status %d", domain.ErrAuthentication, resp.StatusCode)
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrRemoteNotFound
		case retryable(resp.StatusCode):
			entry.Warnf("[SIGE] API error (attempt %d): %s", attempt, string(body))
			lastErr = fmt.Errorf("%w: status %d", domain.ErrRemoteAPIFailure, resp.StatusCode)
		default:
			entry.Warnf("[SIGE] API error: %s", string(body))
			return nil, fmt.Errorf("%w: status %d, body: %s", domain.ErrRemoteAPIFailure, resp.StatusCode, string(body))
		}
	}

	c.logger.WithField("path", path).Error("[SIGE] all retries failed")
	return nil, lastErr
}

// GetRemoteBalance returns the raw stock payload of one SIGE product, untouched
func (c *Client) GetRemoteBalance(ctx context.Context, remoteID string) (json.RawMessage, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return nil, domain.ErrNoRemoteID
	}
	body, err := c.get(ctx, "/produtos/"+url.PathEscape(remoteID)+"/saldo", nil)
	if err != nil {
		return nil, err
	}
	c.debugLog("balance payload for %s: %d bytes", remoteID, len(body))
	return json.RawMessage(body), nil
}

// ListRemoteProducts lists SIGE products. With filter.Page set only that page is fetched;
// otherwise pages are walked until an empty or short page.
func (c *Client) ListRemoteProducts(ctx context.Context, filter domain.RemoteProductFilter) ([]domain.RemoteProduct, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}

	if filter.Page > 0 {
		rows, _, err := c.fetchPage(ctx, filter.Code, filter.Page, pageSize)
		return rows, err
	}

	var all []domain.RemoteProduct
	for page := 1; page <= maxPages; page++ {
		rows, rowCount, err := c.fetchPage(ctx, filter.Code, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		// a short page is judged on what SIGE sent, not on what survived mapping
		if rowCount < pageSize {
			c.logger.WithFields(logrus.Fields{"pages": page, "rows": len(all)}).Info("[SIGE] catalog listed")
			return all, nil
		}
	}
	return nil, fmt.Errorf("%w: paging did not end after %d pages", domain.ErrCatalogParse, maxPages)
}

func (c *Client) fetchPage(ctx context.Context, code string, page, pageSize int) ([]domain.RemoteProduct, int, error) {
	params := url.Values{}
	params.Set("pagina", strconv.Itoa(page))
	params.Set("tamanhoPagina", strconv.Itoa(pageSize))
	if code != "" {
		params.Set("codigo", code)
	}

	body, err := c.get(ctx, "/produtos", params)
	if err != nil {
		if errors.Is(err, domain.ErrRemoteNotFound) && code != "" {
			// a code search with no hit answers 404 on some SIGE versions
			return nil, 0, nil
		}
		return nil, 0, err
	}

	rows, rowCount, err := ParseCatalogPage(body)
	if err != nil {
		c.logger.WithError(err).WithField("page", page).Error("[SIGE] unparseable catalog page")
		return nil, 0, err
	}
	if dropped := rowCount - len(rows); dropped > 0 {
		c.logger.WithFields(logrus.Fields{"page": page, "dropped": dropped}).Warn("[SIGE] catalog rows without id or code dropped")
	}
	c.debugLog("page %d: %d row(s), %d mapped", page, rowCount, len(rows))
	return rows, rowCount, nil
}
