package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/registry"
)

const maxErrorBodyBytes = 1024

// Config carries the retry and timeout knobs for one service client.
// FallbackURL is used when no registry is wired or discovery finds nothing.
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryMinWait time.Duration
	RetryMaxWait time.Duration
	FallbackURL  string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 300 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryMinWait <= 0 {
		c.RetryMinWait = time.Second
	}
	if c.RetryMaxWait <= 0 {
		c.RetryMaxWait = 10 * time.Second
	}
	return c
}

// HTTPError is a non-2xx response from a model service. 5xx responses are
// retried, 4xx are not.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("service returned status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Retryable() bool { return e.StatusCode >= 500 }

// LoadModelRequest asks a service to load model weights onto a device.
type LoadModelRequest struct {
	ModelName string `json:"model_name"`
	Device    string `json:"device"`
}

type UnloadModelRequest struct {
	CleanupMemory bool `json:"cleanup_memory"`
}

// BaseClient is the shared transport for every model service: Consul
// discovery, per-request deadline, exponential backoff with jitter.
type BaseClient struct {
	log         *logger.Logger
	cfg         Config
	serviceName string
	prefix      string
	registry    registry.Registry
	http        *http.Client
}

func newBase(log *logger.Logger, serviceName, prefix string, reg registry.Registry, cfg Config) *BaseClient {
	cfg = cfg.withDefaults()
	return &BaseClient{
		log:         log.With("service", serviceName+"-client"),
		cfg:         cfg,
		serviceName: serviceName,
		prefix:      prefix,
		registry:    reg,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *BaseClient) ServiceName() string { return c.serviceName }

// SetHTTPClient replaces the underlying HTTP client.
func (c *BaseClient) SetHTTPClient(hc *http.Client) { c.http = hc }

// Connect verifies an endpoint can be resolved now rather than on the
// first inference call.
func (c *BaseClient) Connect(ctx context.Context) error {
	url, err := c.serviceURL(ctx)
	if err != nil {
		return err
	}
	c.log.Info("Client connected", "url", url)
	return nil
}

func (c *BaseClient) Close() {
	c.http.CloseIdleConnections()
	c.log.Info("Client closed")
}

func (c *BaseClient) serviceURL(ctx context.Context) (string, error) {
	if c.registry != nil {
		info, err := c.registry.GetHealthyService(ctx, c.serviceName)
		if err == nil {
			return info.BaseURL(), nil
		}
		if c.cfg.FallbackURL == "" {
			return "", err
		}
		c.log.Warn("Discovery failed, using fallback", "error", err, "fallback", c.cfg.FallbackURL)
	}
	if c.cfg.FallbackURL != "" {
		return strings.TrimRight(c.cfg.FallbackURL, "/"), nil
	}
	return "", fmt.Errorf("no %s endpoint: %w", c.serviceName, errs.ErrServiceUnavailable)
}

func (c *BaseClient) endpoint(op string) string { return c.prefix + "/" + op }

// makeRequest runs up to MaxRetries+1 attempts. Transport errors, timeouts
// and 5xx responses are retried; 4xx responses fail immediately.
func (c *BaseClient) makeRequest(ctx context.Context, method, endpoint string, payload any, out any) error {
	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, computeBackoff(c.cfg.RetryMinWait, c.cfg.RetryMaxWait, attempt-1)); err != nil {
				return err
			}
		}

		err := c.attempt(ctx, method, endpoint, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		c.log.Warn("Request attempt failed",
			"endpoint", endpoint, "attempt", attempt, "of", attempts, "error", err)
	}
	return fmt.Errorf("%s request to %s failed after %d attempts: %w",
		c.serviceName, endpoint, attempts, lastErr)
}

func (c *BaseClient) attempt(ctx context.Context, method, endpoint string, payload any, out any) error {
	baseURL, err := c.serviceURL(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<24))
	if err != nil {
		return &transportError{cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// LoadModel brackets a stage: the service pins the named model on the
// requested device until UnloadModel.
func (c *BaseClient) LoadModel(ctx context.Context, modelName, device string) error {
	req := LoadModelRequest{ModelName: modelName, Device: device}
	if err := c.makeRequest(ctx, http.MethodPost, c.endpoint("load"), req, nil); err != nil {
		return err
	}
	c.log.Info("Model loaded", "model", modelName, "device", device)
	return nil
}

func (c *BaseClient) UnloadModel(ctx context.Context, cleanupMemory bool) error {
	req := UnloadModelRequest{CleanupMemory: cleanupMemory}
	if err := c.makeRequest(ctx, http.MethodPost, c.endpoint("unload"), req, nil); err != nil {
		return err
	}
	c.log.Info("Model unloaded")
	return nil
}

func (c *BaseClient) ListModels(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.makeRequest(ctx, http.MethodGet, c.endpoint("models"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BaseClient) GetStatus(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.makeRequest(ctx, http.MethodGet, c.endpoint("status"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BaseClient) invoke(ctx context.Context, req any, out any) error {
	return c.makeRequest(ctx, http.MethodPost, c.endpoint("infer"), req, out)
}

type transportError struct {
	cause error
}

func (e *transportError) Error() string { return fmt.Sprintf("transport error: %v", e.cause) }
func (e *transportError) Unwrap() error { return e.cause }

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var tErr *transportError
	if errors.As(err, &tErr) {
		// The overall context being done is terminal; a per-attempt
		// network timeout is not.
		if errors.Is(err, context.Canceled) {
			return false
		}
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func computeBackoff(minWait, maxWait time.Duration, retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	backoff := time.Duration(float64(minWait) * math.Pow(2, float64(retries-1)))
	if backoff > maxWait {
		backoff = maxWait
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/5 + 1))
	return backoff + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
