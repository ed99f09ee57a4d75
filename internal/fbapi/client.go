// Package fbapi is the ad library REST client used for single-ad and page
// fetches outside the browser pipeline. Error classification follows the
// Meta error envelope; throttling is owned by an explicit limiter.
package fbapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/metrics"
	"github.com/adscope/harvester/internal/retry"
)

const clientUserAgent = "adscope-harvester/1.0"

// ErrPageFetchUnsupported guides the caller toward manual import: page-level
// fetch needs verified upstream access this deployment does not hold.
var ErrPageFetchUnsupported = fmt.Errorf(
	"page-level fetch requires verified ad library API access; export the page's ads and use the manual import instead")

type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *Limiter
	policy      retry.Policy
	logger      zerolog.Logger
}

func NewClient(cfg config.AdLibraryConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     NewLimiter(cfg.MinInterval),
		policy:      retry.Client,
		logger:      logger,
	}
}

// errorEnvelope is the Meta error response shape.
type errorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		TraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

// classify maps the envelope to the retry taxonomy. Code 190 and the
// OAuthException token subcodes are credential failures; code 4 / 17 / 32
// are the documented throttling codes; code 10 and 200-299 are permission
// errors.
func (e errorEnvelope) classify() retry.Class {
	detail := e.Error
	switch {
	case detail.Code == 190,
		detail.Type == "OAuthException" && (detail.ErrorSubcode == 460 || detail.ErrorSubcode == 463 || detail.ErrorSubcode == 467):
		return retry.ClassToken
	case detail.Code == 4 || detail.Code == 17 || detail.Code == 32:
		return retry.ClassRateLimit
	case detail.Code == 10 || (detail.Code >= 200 && detail.Code < 300):
		return retry.ClassPermission
	}
	return retry.ClassUnknown
}

// FetchAd retrieves one ad by its archive id and returns it as a raw
// candidate for the normalizer.
func (c *Client) FetchAd(ctx context.Context, adID string) (ads.RawCandidate, error) {
	if adID == "" {
		return nil, fmt.Errorf("fetch ad: id is required")
	}
	if c.accessToken == "" {
		return nil, retry.Classified(retry.ClassToken,
			fmt.Errorf("fetch ad %s: no access token configured", adID))
	}

	endpoint := fmt.Sprintf("%s/%s?fields=%s&access_token=%s",
		c.baseURL, url.PathEscape(adID), adFields, url.QueryEscape(c.accessToken))

	return retry.Do(ctx, c.policy, retry.Classify, c.observeRetry("fetch_ad"),
		func(ctx context.Context) (ads.RawCandidate, error) {
			return c.getCandidate(ctx, endpoint)
		})
}

// FetchPage is explicitly unsupported without verified upstream access and
// returns a guided error suggesting manual import.
func (c *Client) FetchPage(_ context.Context, pageID string, _ int) ([]ads.RawCandidate, error) {
	return nil, fmt.Errorf("fetch page %s: %w", pageID, ErrPageFetchUnsupported)
}

// Ping probes the API root. It reports reachability, not credential
// validity: an HTTP response of any status counts as reachable.
func (c *Client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", clientUserAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("fbapi: ping failed")
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return true
}

const adFields = "id,ad_creative_body,ad_creative_link_title,ad_delivery_start_time,ad_delivery_stop_time,page_id,page_name,publisher_platforms"

func (c *Client) getCandidate(ctx context.Context, endpoint string) (ads.RawCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", clientUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.responseError(resp.StatusCode, body)
	}

	var candidate ads.RawCandidate
	if err := json.Unmarshal(body, &candidate); err != nil {
		return nil, fmt.Errorf("parse ad response: %w", err)
	}
	return candidate, nil
}

// responseError prefers the envelope's own classification and falls back to
// the HTTP status.
func (c *Client) responseError(status int, body []byte) error {
	base := fmt.Errorf("upstream status %d: %s", status, bodySnippet(body))

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		base = fmt.Errorf("upstream status %d: %s (code %d, trace %s)",
			status, envelope.Error.Message, envelope.Error.Code, envelope.Error.TraceID)
		if class := envelope.classify(); class != retry.ClassUnknown {
			return retry.Classified(class, base)
		}
	}
	return retry.Classified(retry.ClassifyStatus(status), base)
}

func (c *Client) observeRetry(operation string) retry.OnRetry {
	return func(attempt, maxAttempts int, delay time.Duration, err error) {
		metrics.RetryAttempts.WithLabelValues(string(retry.Classify(err))).Inc()
		c.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("retry_in", delay).
			Err(err).
			Msg("fbapi: transient failure, retrying")
	}
}

func bodySnippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
