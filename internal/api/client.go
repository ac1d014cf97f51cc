package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	appLog "calimport/internal/log"
)

const (
	defaultTimeout   = time.Hour
	maxResponseBytes = 16 << 20
	requestIDHeader  = "X-Request-ID"
)

// Client talks to the calendar sync API. The bearer token is attached by
// an oauth2 transport.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	base    *http.Client
	timeout time.Duration
}

// WithBaseHTTPClient sets the client whose transport carries the requests.
func WithBaseHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.base = c }
}

// WithTimeout bounds a single call.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewClient creates a client for baseURL authenticating with token. An
// empty token sends unauthenticated requests.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	o := clientOptions{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	if o.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.base)
	}

	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
	} else if o.base != nil {
		c := *o.base
		hc = &c
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = o.timeout

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// SyncMultipleEvents submits events to calendarID in one call. A nil error
// means the batch was processed; each SyncResponse still carries its own
// code.
func (c *Client) SyncMultipleEvents(ctx context.Context, calendarID, memberID string, events []SyncEvent) ([]SyncResponse, error) {
	const op = "sync"
	if calendarID == "" {
		return nil, &Error{Op: op, Message: "invalid request", Err: ErrMissingCalendarID}
	}

	body, err := json.Marshal(syncRequest{MemberID: memberID, IsImport: 1, Events: events})
	if err != nil {
		return nil, wrapError(op, "encode request", err)
	}

	endpoint := c.baseURL + "/calendar/v1/" + url.PathEscape(calendarID) + "/events/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(op, "build request", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapError(op, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, wrapError(op, "read response", err)
	}

	var env syncEnvelope
	decodeErr := json.Unmarshal(raw, &env)

	appLog.Debug("api sync completed",
		"request_id", reqID,
		"calendar_id", calendarID,
		"events", len(events),
		"status", resp.StatusCode,
		"code", env.Code,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, newStatusError(op, resp.StatusCode, env.Code, msg)
	}
	if decodeErr != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "decode response", Err: fmt.Errorf("%w: %v", ErrInvalidResponse, decodeErr)}
	}
	if env.Code != CodeMultiSuccess && env.Code != CodeSingleSuccess {
		msg := env.Error
		if msg == "" {
			msg = "unexpected response code"
		}
		return nil, newStatusError(op, resp.StatusCode, env.Code, msg)
	}
	if len(env.Responses) != len(events) {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Message: "decode response", Err: ErrMismatchedResponse}
	}

	return env.Responses, nil
}
