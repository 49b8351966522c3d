package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned when the explorer answers 404, which is common for wallets without history.
	ErrNotFound = errors.New("explorer: not found")
	// ErrPageLimit is returned together with the pages collected so far when pagination hits its bound.
	ErrPageLimit = errors.New("explorer: page limit reached")
)

// StatusError is a non-2xx explorer response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("explorer: http %d", e.StatusCode)
	}
	return fmt.Sprintf("explorer: http %d: %s", e.StatusCode, e.Message)
}

// Transport performs GET requests against the explorer.
type Transport interface {
	Get(ctx context.Context, url string) (int, []byte, error)
}

// HTTPTransport is a rate-limited net/http Transport.
type HTTPTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPTransport builds a transport issuing at most rps requests per second. rps <= 0 disables the limit.
func NewHTTPTransport(timeout time.Duration, rps float64) *HTTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPTransport{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (t *HTTPTransport) Get(ctx context.Context, url string) (int, []byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read explorer response: %w", err)
	}
	return resp.StatusCode, body, nil
}
