// Package rest implements the stores over a PostgREST-style HTTP API.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/vietddude/resync/internal/infra/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	mediaSingleObject = "application/vnd.pgrst.object+json"
	preferReturnRows  = "return=representation"
	preferCountExact  = "count=exact"
)

// Config holds REST API connection configuration.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client is a thin PostgREST client shared by the REST repositories.
type Client struct {
	http *resty.Client
	log  *slog.Logger
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest store requires base_url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		http: resty.New(),
		log:  slog.Default().With("component", "rest"),
	}
	c.http.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	c.http.SetTimeout(timeout)
	c.http.SetJSONMarshaler(json.Marshal)
	c.http.SetJSONUnmarshaler(json.Unmarshal)
	c.http.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.http.SetHeader("apikey", cfg.APIKey)
	}
	if cfg.Token != "" {
		c.http.SetAuthToken(cfg.Token)
	}

	c.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		c.log.Debug("HTTP Response",
			"method", resp.Request.Method,
			"url", resp.Request.URL,
			"status", resp.StatusCode(),
			"duration", resp.Time(),
		)
		return nil
	})

	return c, nil
}

// SetToken replaces the bearer token, e.g. after a session refresh.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// Health checks that the API root answers.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Head("/")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// APIError is an error response from the API. Code is the PostgREST or
// SQLSTATE code when the body carries one, otherwise HTTP_<status>.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
	StatusCode int    `json:"-"`
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s (%s)", e.StatusCode, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) ErrorCode() string {
	return e.Code
}

func (e *APIError) RetryDelay() time.Duration {
	return e.retryAfter
}

func (e *APIError) Is(target error) bool {
	return target == storage.ErrNotFound && e.Code == storage.NotFoundCode
}

// parseError builds an APIError from a non-2xx response.
func parseError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(resp.Body()))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
	}
	if apiErr.Code == "" {
		apiErr.Code = "HTTP_" + strconv.Itoa(resp.StatusCode())
	}
	apiErr.retryAfter = parseRetryAfter(resp.Header().Get("Retry-After"))
	return apiErr
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func notFound(what string) error {
	return &APIError{
		Code:       storage.NotFoundCode,
		Message:    what + " not found",
		StatusCode: http.StatusNotAcceptable,
	}
}

// eq and in build PostgREST filter values.
func eq(v string) string {
	return "eq." + v
}

func in(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}

// countFromRange reads the total from a Content-Range header like "0-24/3573" or "*/0".
func countFromRange(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || h[i+1:] == "*" {
		return 0, fmt.Errorf("content-range without total: %q", h)
	}
	return strconv.Atoi(h[i+1:])
}
