package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cricket-trivia-service/internal/domain"
	"github.com/valyala/fasthttp"
)

const defaultTimeout = 10 * time.Second

// Client talks to the attempt API from a device. It satisfies app.Committer so the
// offline submitter can replay its outbox against a remote server.
type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	timeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying fasthttp client, e.g. to dial an in-memory
// listener in tests.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds requests whose context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         defaultTimeout,
			WriteTimeout:        defaultTimeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Commit upserts a prebuilt attempt at PUT /v1/accounts/{userID}/attempts/{slotID}.
func (c *Client) Commit(ctx context.Context, userID string, attempt domain.QuizAttempt) (domain.CommitResult, error) {
	body, err := json.Marshal(attempt)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("encode attempt: %w", err)
	}
	path := "/v1/accounts/" + url.PathEscape(userID) + "/attempts/" + url.PathEscape(attempt.SlotID)

	var result domain.CommitResult
	if err := c.do(ctx, fasthttp.MethodPut, path, body, &result); err != nil {
		return domain.CommitResult{}, err
	}
	return result, nil
}

// Healthy reports whether the API answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, fasthttp.MethodGet, "/healthz", nil, nil) == nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, domain.ErrConnectivity, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, domain.ErrConnectivity, err)
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		if out == nil || len(resp.Body()) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(resp.Body(), &eb)
	if eb.Code == "" {
		eb.Code = codeForStatus(status)
	}
	return fmt.Errorf("%s %s (%d): %w", method, path, status, domain.FromCode(eb.Code, eb.Error))
}

func codeForStatus(status int) string {
	switch {
	case status == fasthttp.StatusBadRequest:
		return domain.CodeInvalidAttempt
	case status == fasthttp.StatusNotFound:
		return domain.CodeAccountNotFound
	case status == fasthttp.StatusServiceUnavailable, status == fasthttp.StatusGatewayTimeout:
		return domain.CodeUnreachable
	default:
		return domain.CodeRejected
	}
}
