// Package agentapi wraps the stateful-agent platform's HTTP API. The
// platform owns conversation state, memory and reasoning; this client only
// moves requests and responses.
package agentapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"resty.dev/v3"

	"github.com/quickcall/quickcall/internal/ctxlog"
)

// ErrNotFound is returned when the platform reports a missing resource.
var ErrNotFound = errors.New("agentapi: not found")

// APIError carries the platform's error body alongside the HTTP status.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent platform returned %d: %s", e.StatusCode, e.Detail)
}

// Config holds the client's connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is a thin wrapper over the platform's REST surface.
type Client struct {
	http *resty.Client
}

// New builds a Client with a shared underlying HTTP client so connections
// are reused across requests.
func New(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Client{http: c}
}

// Close releases idle connections held by the underlying client.
func (c *Client) Close() error {
	return c.http.Close()
}

// errorBody matches the platform's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// check converts a non-2xx response into an APIError (or ErrNotFound).
func check(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !res.IsError() {
		return nil
	}
	if res.StatusCode() == 404 {
		return ErrNotFound
	}
	detail := res.String()
	if body, ok := res.Error().(*errorBody); ok && body.Detail != "" {
		detail = body.Detail
	}
	return &APIError{StatusCode: res.StatusCode(), Detail: detail}
}

// ListAgents returns every agent visible to the configured token.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&agents).
		SetError(&errorBody{}).
		Get("/v1/agents/")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// GetAgent fetches one agent by ID.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var agent Agent
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("agent_id", agentID).
		SetResult(&agent).
		SetError(&errorBody{}).
		Get("/v1/agents/{agent_id}")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	return &agent, nil
}

// ListMessages returns transcript messages for an agent, oldest first.
// after is a message ID cursor; empty means from the beginning.
func (c *Client) ListMessages(ctx context.Context, agentID, after string, limit int) ([]Message, error) {
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("agent_id", agentID).
		SetError(&errorBody{})
	if after != "" {
		req.SetQueryParam("after", after)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	var messages []Message
	res, err := req.SetResult(&messages).Get("/v1/agents/{agent_id}/messages")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", agentID, err)
	}
	return messages, nil
}

// sendRequest is the platform's message-send envelope.
type sendRequest struct {
	Messages []sendMessage `json:"messages"`
}

type sendMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// sendResponse wraps the messages generated by one agent step.
type sendResponse struct {
	Messages []Message `json:"messages"`
}

// SendMessage posts a user message and returns the agent's response
// messages (assistant text plus any tool activity).
func (c *Client) SendMessage(ctx context.Context, agentID, text string) ([]Message, error) {
	ctxlog.FromContext(ctx).Debug("Sending message to agent.", "agent_id", agentID, "chars", len(text))
	var out sendResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("agent_id", agentID).
		SetBody(sendRequest{Messages: []sendMessage{{Role: "user", Content: text}}}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/v1/agents/{agent_id}/messages")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("send message to %s: %w", agentID, err)
	}
	return out.Messages, nil
}

// GetBlock reads a core-memory block by label.
func (c *Client) GetBlock(ctx context.Context, agentID, label string) (*Block, error) {
	var block Block
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("agent_id", agentID).
		SetPathParam("label", label).
		SetResult(&block).
		SetError(&errorBody{}).
		Get("/v1/agents/{agent_id}/core-memory/blocks/{label}")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("get block %s/%s: %w", agentID, label, err)
	}
	return &block, nil
}

// UpdateBlock replaces the value of a core-memory block.
func (c *Client) UpdateBlock(ctx context.Context, agentID, label, value string) (*Block, error) {
	var block Block
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("agent_id", agentID).
		SetPathParam("label", label).
		SetBody(map[string]string{"value": value}).
		SetResult(&block).
		SetError(&errorBody{}).
		Patch("/v1/agents/{agent_id}/core-memory/blocks/{label}")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("update block %s/%s: %w", agentID, label, err)
	}
	return &block, nil
}

// ListSources returns all file sources.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&sources).
		SetError(&errorBody{}).
		Get("/v1/sources/")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// CreateSource creates a named source.
func (c *Client) CreateSource(ctx context.Context, name string) (*Source, error) {
	var source Source
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		SetResult(&source).
		SetError(&errorBody{}).
		Post("/v1/sources/")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("create source %q: %w", name, err)
	}
	return &source, nil
}

// EnsureSource finds a source by name, creating it if absent.
func (c *Client) EnsureSource(ctx context.Context, name string) (*Source, error) {
	sources, err := c.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sources {
		if sources[i].Name == name {
			return &sources[i], nil
		}
	}
	return c.CreateSource(ctx, name)
}

// UploadFile streams a file into a source.
func (c *Client) UploadFile(ctx context.Context, sourceID, fileName string, r io.Reader) (*File, error) {
	var file File
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("source_id", sourceID).
		SetFileReader("file", fileName, r).
		SetResult(&file).
		SetError(&errorBody{}).
		Post("/v1/sources/{source_id}/upload")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("upload %q to source %s: %w", fileName, sourceID, err)
	}
	return &file, nil
}

// ListFiles returns the files in a source.
func (c *Client) ListFiles(ctx context.Context, sourceID string) ([]File, error) {
	var files []File
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("source_id", sourceID).
		SetResult(&files).
		SetError(&errorBody{}).
		Get("/v1/sources/{source_id}/files")
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("list files in source %s: %w", sourceID, err)
	}
	return files, nil
}

// DeleteFile removes one file from a source.
func (c *Client) DeleteFile(ctx context.Context, sourceID, fileID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("source_id", sourceID).
		SetPathParam("file_id", fileID).
		SetError(&errorBody{}).
		Delete("/v1/sources/{source_id}/{file_id}")
	if err := check(res, err); err != nil {
		return fmt.Errorf("delete file %s from source %s: %w", fileID, sourceID, err)
	}
	return nil
}

// AttachSource makes a source's files available to an agent.
func (c *Client) AttachSource(ctx context.Context, agentID, sourceID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("agent_id", agentID).
		SetPathParam("source_id", sourceID).
		SetError(&errorBody{}).
		Patch("/v1/agents/{agent_id}/sources/attach/{source_id}")
	if err := check(res, err); err != nil {
		return fmt.Errorf("attach source %s to agent %s: %w", sourceID, agentID, err)
	}
	return nil
}
