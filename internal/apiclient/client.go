// Package apiclient talks to the roster REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	// CookieName is the session cookie set by the login endpoint.
	CookieName = "auth_token"
)

var errMissingBaseURL = errors.New("apiclient: base url is required")

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is a typed client for the /api routes. It keeps the session cookie
// in its cookie jar.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

// New builds a Client. Without an HTTPClient a dedicated one with a cookie
// jar is created.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errMissingBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("apiclient: cookie jar: %w", err)
		}
		dialer := &net.Dialer{Timeout: defaultConnectTimeout}
		httpClient = &http.Client{
			Transport: &http.Transport{DialContext: dialer.DialContext},
			Timeout:   defaultTimeout,
			Jar:       jar,
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: base, http: httpClient, logger: logger}, nil
}

// envelope is the common shape of every API response.
type envelope struct {
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	Error          string            `json:"error"`
	Field          string            `json:"field"`
	Value          json.RawMessage   `json:"value"`
	Errors         []string          `json:"errors"`
	DetailedErrors map[string]string `json:"detailedErrors"`
}

// SessionToken returns the session cookie currently held for the API host.
func (c *Client) SessionToken() string {
	if c.http.Jar == nil {
		return ""
	}
	for _, cookie := range c.http.Jar.Cookies(c.baseURL) {
		if cookie.Name == CookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// call sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses are mapped onto the package error types.
func (c *Client) call(ctx context.Context, op, method, path, resource string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed",
			zap.String("operation", op),
			zap.String("path", path),
			zap.Error(err))
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeFailure(resp.StatusCode, resource, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func decodeFailure(status int, resource string, payload []byte) error {
	var env envelope
	_ = json.Unmarshal(payload, &env)
	message := env.Message
	if message == "" {
		message = strings.TrimSpace(string(payload))
	}
	switch status {
	case http.StatusNotFound:
		return &NotFoundError{Resource: resource, Message: message}
	case http.StatusUnauthorized:
		if strings.Contains(strings.ToLower(message), "expired") {
			return &AuthExpiredError{Message: message}
		}
	case http.StatusBadRequest:
		if env.Field != "" {
			return &DuplicateKeyError{Field: env.Field, Value: rawValue(env.Value), Message: message}
		}
		if len(env.DetailedErrors) > 0 {
			return &records.ValidationError{Fields: records.FieldErrors(env.DetailedErrors)}
		}
	}
	return &StatusError{Status: status, Message: message}
}

func rawValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

func userPath(id int) string {
	return "/users/" + strconv.Itoa(id)
}
