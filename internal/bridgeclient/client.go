// Package bridgeclient is the panel's client for the bridge companion.
package bridgeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/quickcall/quickcall/internal/bridge"
	"github.com/quickcall/quickcall/internal/bridge/httpd"
)

// ErrNotFound is returned when the bridge does not know the call ID.
var ErrNotFound = errors.New("bridgeclient: call not found")

// Client talks to the bridge companion's HTTP API.
type Client struct {
	http *resty.Client
}

// New builds a client for the bridge at baseURL.
func New(baseURL, authToken string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	if authToken != "" {
		c.SetHeader(httpd.AuthHeader, authToken)
	}
	return &Client{http: c}
}

// Close releases idle connections held by the underlying client.
func (c *Client) Close() error {
	return c.http.Close()
}

type errorResponse struct {
	Error string `json:"error"`
}

func check(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !res.IsError() {
		return nil
	}
	if res.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	msg := res.String()
	if body, ok := res.Error().(*errorResponse); ok && body.Error != "" {
		msg = body.Error
	}
	return fmt.Errorf("bridge returned %d: %s", res.StatusCode(), msg)
}

// Token requests a signed gateway join token.
func (c *Client) Token(ctx context.Context, room, identity string) (*httpd.TokenResponse, error) {
	var out httpd.TokenResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(httpd.TokenRequest{Room: room, Identity: identity}).
		SetResult(&out).
		SetError(&errorResponse{}).
		Post("/token")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	return &out, nil
}

// StartCall asks the bridge to place an outbound call.
func (c *Client) StartCall(ctx context.Context, agentID, phoneNumber string) (*bridge.Call, error) {
	var call bridge.Call
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(httpd.StartCallRequest{AgentID: agentID, PhoneNumber: phoneNumber}).
		SetResult(&call).
		SetError(&errorResponse{}).
		Post("/calls")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("start call: %w", err)
	}
	return &call, nil
}

// ListCalls returns every call the bridge tracks.
func (c *Client) ListCalls(ctx context.Context) ([]bridge.Call, error) {
	var calls []bridge.Call
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&calls).
		SetError(&errorResponse{}).
		Get("/calls")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return calls, nil
}

// GetCall fetches one call by ID.
func (c *Client) GetCall(ctx context.Context, id string) (*bridge.Call, error) {
	var call bridge.Call
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&call).
		SetError(&errorResponse{}).
		Get("/calls/{id}")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("get call %s: %w", id, err)
	}
	return &call, nil
}

// Hangup ends a call.
func (c *Client) Hangup(ctx context.Context, id string) (*bridge.Call, error) {
	var call bridge.Call
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&call).
		SetError(&errorResponse{}).
		Delete("/calls/{id}")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("hang up call %s: %w", id, err)
	}
	return &call, nil
}
