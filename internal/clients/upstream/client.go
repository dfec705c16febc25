package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

type Options struct {
	BaseURL string
	APIKey  string

	Timeout       time.Duration
	StreamTimeout time.Duration
	HealthTimeout time.Duration
	MaxRetries    int

	HTTPClient *http.Client
}

// Client talks to the task-execution service that produces the event stream.
type Client struct {
	baseURL string
	apiKey  string

	timeout       time.Duration
	streamTimeout time.Duration
	healthTimeout time.Duration
	maxRetries    int

	httpClient *http.Client
	health     singleflight.Group
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrNotConfigured)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(opts.APIKey),
		timeout:       timeout,
		streamTimeout: opts.StreamTimeout,
		healthTimeout: healthTimeout,
		maxRetries:    maxRetries,
		httpClient:    hc,
	}, nil
}

// BaseURL returns the normalized upstream base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Open satisfies the orchestrator's transport contract.
func (c *Client) Open(ctx context.Context, req task.TaskRequest) (io.ReadCloser, error) {
	return c.OpenTaskStream(ctx, req)
}

// OpenTaskStream starts a task and returns its Server-Sent-Events body. The caller closes it.
func (c *Client) OpenTaskStream(ctx context.Context, req task.TaskRequest) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}

	var cancel context.CancelFunc = func() {}
	if c.streamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.streamTimeout)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks/stream", &buf)
	if err != nil {
		cancel()
		return nil, err
	}
	c.setHeaders(httpReq, "application/json", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		cancel()
		return nil, parseHTTPError(resp.StatusCode, raw)
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

// Healthy probes GET /healthz. Concurrent probes share one request.
func (c *Client) Healthy(ctx context.Context) bool {
	v, _, _ := c.health.Do("healthz", func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.healthTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(pctx, http.MethodGet, c.baseURL+"/healthz", nil)
		if err != nil {
			return false, nil
		}
		c.setHeaders(req, "", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
	})
	ok, _ := v.(bool)
	return ok
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

func (c *Client) GenerateSuggestions(ctx context.Context, req task.SuggestionRequest) ([]string, error) {
	var resp suggestionsResponse
	if err := c.doJSON(ctx, c.timeout, http.MethodPost, "/v1/suggestions", req, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Suggestions))
	seen := make(map[string]bool, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("upstream returned no suggestions")
	}
	return out, nil
}

// ---------------- HTTP helpers ----------------

func (c *Client) setHeaders(req *http.Request, contentType string, accept string) {
	if strings.TrimSpace(contentType) != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(accept) != "" {
		req.Header.Set("Accept", accept)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx2.Err() != nil {
			return ctx2.Err()
		}

		req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		c.setHeaders(req, "application/json", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				return readErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				herr := parseHTTPError(resp.StatusCode, raw)
				lastErr = herr
				var he *HTTPError
				if errors.As(herr, &he) && !he.Retryable() {
					return herr
				}
			} else {
				if out == nil {
					return nil
				}
				return json.Unmarshal(raw, out)
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx2.Done():
				return ctx2.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return lastErr
}
