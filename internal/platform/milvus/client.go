package milvus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/videorag-backend/internal/platform/envutil"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

type Config struct {
	URL      string
	Database string
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		URL:      envutil.Str("MILVUS_URL", "http://localhost:19530"),
		Database: envutil.Str("MILVUS_DATABASE", "default"),
		Timeout:  envutil.Duration("MILVUS_TIMEOUT", 30*time.Second),
	}
}

// Client talks to the Milvus RESTful v2 API. Every response carries the
// {code, message, data} envelope; a non-zero code is an error even on
// HTTP 200.
type Client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, opErr("configure", OperationErrorValidation, "milvus url required", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		log:     log.With("service", "MilvusClient"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	c.log.Info("Milvus client configured", "url", c.baseURL, "database", cfg.Database)
	return c, nil
}

func (c *Client) Database() string { return c.cfg.Database }

func (c *Client) doJSON(ctx context.Context, op, path string, in any, out any) error {
	body := map[string]any{}
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "request must encode to an object", err)
		}
	}
	if strings.TrimSpace(c.cfg.Database) != "" {
		if _, ok := body["dbName"]; !ok {
			body["dbName"] = c.cfg.Database
		}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "milvus request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("milvus http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode milvus envelope failed", err)
	}
	if env.Code != 0 && env.Code != 200 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("milvus code=%d message=%q", env.Code, env.Message),
		}
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode milvus result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
