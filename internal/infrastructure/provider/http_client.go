package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

// HTTPError is a non-retryable provider response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider http %d", e.StatusCode)
	}
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Message)
}

type HTTPOptions struct {
	BaseURL    string
	User       string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	RateLimit  float64
	Burst      int
}

// HTTPClient reads the provider's JSON feed. Requests share one rate
// limiter; transport failures, 429 and 5xx answers are retried with
// exponential backoff.
type HTTPClient struct {
	baseURL    string
	user       string
	secret     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ ports.ProviderClient = (*HTTPClient)(nil)

func NewHTTPClient(options HTTPOptions, httpClient *http.Client) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(options.BaseURL), "/")
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if options.RateLimit > 0 {
		limit = rate.Limit(options.RateLimit)
	}
	burst := options.Burst
	if burst < 1 {
		burst = 1
	}
	baseDelay := options.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := options.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	baseDelay = min(baseDelay, maxDelay)

	return &HTTPClient{
		baseURL:    baseURL,
		user:       strings.TrimSpace(options.User),
		secret:     strings.TrimSpace(options.Secret),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: max(options.MaxRetries, 0),
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (c *HTTPClient) FetchLiveSnapshotBatch(ctx context.Context) ([]match.Snapshot, error) {
	var payload livePayload
	if err := c.getJSON(ctx, "/match/live", nil, &payload); err != nil {
		return nil, errs.Wrap(err, "fetch live snapshot batch")
	}

	snapshots := make([]match.Snapshot, 0, len(payload.Results))
	for _, entry := range payload.Results {
		snapshots = append(snapshots, entry.snapshot())
	}
	return snapshots, nil
}

func (c *HTTPClient) FetchEventDetail(ctx context.Context, eventID string) (match.Snapshot, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return match.Snapshot{}, match.ErrEventIDRequired
	}

	var payload livePayload
	if err := c.getJSON(ctx, "/match/detail_live", url.Values{"uuid": []string{id}}, &payload); err != nil {
		return match.Snapshot{}, errs.Wrapf(err, "fetch event detail %q", id)
	}
	for _, entry := range payload.Results {
		if strings.TrimSpace(entry.ID) == id {
			return entry.snapshot(), nil
		}
	}
	return match.Snapshot{}, errs.Wrapf(ports.ErrEventNotFound, "provider detail %q", id)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, query url.Values, out *livePayload) error {
	if query == nil {
		query = url.Values{}
	}
	if c.user != "" {
		query.Set("user", c.user)
	}
	if c.secret != "" {
		query.Set("secret", c.secret)
	}
	target := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.baseDelay
	policy.MaxInterval = c.maxDelay

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.getOnce(ctx, target, out)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logging.Debug(ctx, "provider request failed, retrying",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("err", errs.Loggable(err)),
			)
		}),
	)
	return err
}

// getOnce performs one request. Errors wrapped with backoff.Permanent end the
// retry loop; 429 and 5xx answers carry the server's Retry-After hint.
func (c *HTTPClient) getOnce(ctx context.Context, target string, out *livePayload) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(errs.Wrap(err, "wait provider rate limit"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(errs.Wrap(err, "build provider request"))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ports.ErrProviderUnavailable, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return errors.Join(ports.ErrProviderUnavailable, errs.Wrap(readErr, "read provider response"))
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(errs.Permanent(errs.Wrap(err, "decode provider response")))
		}
		if out.Code != 0 {
			return backoff.Permanent(errs.Permanent(&HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("code %d: %s", out.Code, out.Message)}))
		}
		return nil
	}

	httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if hint := c.retryAfter(resp.Header.Get("Retry-After")); hint != nil {
			return errors.Join(ports.ErrProviderUnavailable, httpErr, hint)
		}
		return errors.Join(ports.ErrProviderUnavailable, httpErr)
	}
	return backoff.Permanent(errs.Permanent(httpErr))
}

// retryAfter turns a Retry-After seconds header into a backoff hint capped at
// the client's max delay. Missing or zero headers leave the backoff policy in
// charge.
func (c *HTTPClient) retryAfter(header string) error {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return nil
	}
	return &backoff.RetryAfterError{Duration: min(time.Duration(seconds)*time.Second, c.maxDelay)}
}
