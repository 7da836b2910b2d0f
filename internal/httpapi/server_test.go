package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/quickcall/quickcall/internal/agentapi"
	"github.com/quickcall/quickcall/internal/bridge"
	"github.com/quickcall/quickcall/internal/bridge/httpd"
	"github.com/quickcall/quickcall/internal/bridgeclient"
	"github.com/quickcall/quickcall/internal/testlog"
	"github.com/quickcall/quickcall/internal/transcript"
	"github.com/quickcall/quickcall/internal/uploads"
)

// fakeAgents is an in-memory AgentService.
type fakeAgents struct {
	agents   []agentapi.Agent
	messages map[string][]agentapi.Message
	blocks   map[string]string
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{
		messages: make(map[string][]agentapi.Message),
		blocks:   make(map[string]string),
	}
}

func (f *fakeAgents) ListAgents(ctx context.Context) ([]agentapi.Agent, error) {
	return f.agents, nil
}

func (f *fakeAgents) GetAgent(ctx context.Context, agentID string) (*agentapi.Agent, error) {
	for _, a := range f.agents {
		if a.ID == agentID {
			return &a, nil
		}
	}
	return nil, agentapi.ErrNotFound
}

func (f *fakeAgents) ListMessages(ctx context.Context, agentID, after string, limit int) ([]agentapi.Message, error) {
	if _, err := f.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	msgs := f.messages[agentID]
	if after != "" {
		for i, m := range msgs {
			if m.ID == after {
				return msgs[i+1:], nil
			}
		}
	}
	return msgs, nil
}

func (f *fakeAgents) SendMessage(ctx context.Context, agentID, text string) ([]agentapi.Message, error) {
	if _, err := f.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	reply := []agentapi.Message{
		{ID: "msg-user", MessageType: agentapi.MessageTypeUser, Content: text},
		{ID: "msg-reply", MessageType: agentapi.MessageTypeAssistant, Content: "echo: " + text},
	}
	f.messages[agentID] = append(f.messages[agentID], reply...)
	return reply, nil
}

func (f *fakeAgents) GetBlock(ctx context.Context, agentID, label string) (*agentapi.Block, error) {
	if _, err := f.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return &agentapi.Block{Label: label, Value: f.blocks[agentID]}, nil
}

func (f *fakeAgents) UpdateBlock(ctx context.Context, agentID, label, value string) (*agentapi.Block, error) {
	if _, err := f.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	f.blocks[agentID] = value
	return &agentapi.Block{Label: label, Value: value}, nil
}

// fakeFiles is an in-memory FileStore.
type fakeFiles struct {
	items    []uploads.Item
	saveErr  error
	attached []string
}

func (f *fakeFiles) Save(ctx context.Context, name string, r io.Reader) (uploads.Item, error) {
	if f.saveErr != nil {
		return uploads.Item{}, f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return uploads.Item{}, err
	}
	item := uploads.Item{ID: "file-1", Name: name, Size: int64(len(data))}
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeFiles) List(ctx context.Context) ([]uploads.Item, error) {
	return f.items, nil
}

func (f *fakeFiles) Delete(ctx context.Context, fileID string) error {
	for i, item := range f.items {
		if item.ID == fileID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return uploads.ErrNotFound
}

func (f *fakeFiles) Attach(ctx context.Context, agentID string) error {
	f.attached = append(f.attached, agentID)
	return nil
}

// fakeCalls is an in-memory CallClient.
type fakeCalls struct {
	calls map[string]*bridge.Call
}

func newFakeCalls() *fakeCalls {
	return &fakeCalls{calls: make(map[string]*bridge.Call)}
}

func (f *fakeCalls) Token(ctx context.Context, room, identity string) (*httpd.TokenResponse, error) {
	return &httpd.TokenResponse{Token: "jwt-" + room + "-" + identity, URL: "wss://gw.example.com"}, nil
}

func (f *fakeCalls) StartCall(ctx context.Context, agentID, phoneNumber string) (*bridge.Call, error) {
	call := &bridge.Call{
		ID:          "call-1",
		AgentID:     agentID,
		PhoneNumber: phoneNumber,
		Room:        "call-call-1",
		State:       bridge.StatePending,
		CreatedAt:   time.Now(),
	}
	f.calls[call.ID] = call
	return call, nil
}

func (f *fakeCalls) ListCalls(ctx context.Context) ([]bridge.Call, error) {
	out := make([]bridge.Call, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCalls) GetCall(ctx context.Context, id string) (*bridge.Call, error) {
	call, ok := f.calls[id]
	if !ok {
		return nil, bridgeclient.ErrNotFound
	}
	return call, nil
}

func (f *fakeCalls) Hangup(ctx context.Context, id string) (*bridge.Call, error) {
	call, ok := f.calls[id]
	if !ok {
		return nil, bridgeclient.ErrNotFound
	}
	call.State = bridge.StateEnded
	return call, nil
}

// fakeHub hands out closed subscriptions for handlers that never stream.
type fakeHub struct {
	hub *transcript.Hub
}

func (f *fakeHub) Subscribe(agentID string) *transcript.Subscription {
	return f.hub.Subscribe(agentID)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeAgents, *fakeFiles, *fakeCalls) {
	t.Helper()
	agents := newFakeAgents()
	files := &fakeFiles{}
	calls := newFakeCalls()
	hub := transcript.NewHub(agents, 10*time.Millisecond, testlog.New(t))
	t.Cleanup(hub.Close)

	srv := NewServer(Config{MaxUploadSize: 1 << 20}, agents, files, calls, &fakeHub{hub: hub}, testlog.New(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, agents, files, calls
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestListAgents(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, agents, _, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1", Name: "Receptionist"}}

	// Act
	res, err := http.Get(ts.URL + "/api/agents")

	// Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	got := decode[[]agentapi.Agent](t, res)
	require.Len(t, got, 1)
	require.Equal(t, "Receptionist", got[0].Name)
}

func TestGetAgent_NotFound(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/agents/missing")

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestListMessages_FiltersInternalTypes(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, agents, _, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1"}}
	agents.messages["agent-1"] = []agentapi.Message{
		{ID: "m1", MessageType: agentapi.MessageTypeUser, Content: "hi"},
		{ID: "m2", MessageType: agentapi.MessageTypeReasoning, Content: "thinking"},
		{ID: "m3", MessageType: agentapi.MessageTypeAssistant, Content: "hello"},
	}

	// Act
	res, err := http.Get(ts.URL + "/api/agents/agent-1/messages")

	// Assert: the reasoning message never reaches the panel.
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	got := decode[[]transcript.Entry](t, res)
	require.Len(t, got, 2)
	require.Equal(t, "user", got[0].Role)
	require.Equal(t, "assistant", got[1].Role)
}

func TestListMessages_BadLimit(t *testing.T) {
	t.Parallel()
	ts, agents, _, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1"}}

	res, err := http.Get(ts.URL + "/api/agents/agent-1/messages?limit=nope")

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, agents, _, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1"}}

	// Act
	res, err := http.Post(ts.URL+"/api/agents/agent-1/messages", "application/json",
		strings.NewReader(`{"text":"book me a table"}`))

	// Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	got := decode[[]transcript.Entry](t, res)
	require.Len(t, got, 2)
	require.Equal(t, "book me a table", got[0].Text)
}

func TestSendMessage_EmptyText(t *testing.T) {
	t.Parallel()
	ts, agents, _, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1"}}

	res, err := http.Post(ts.URL+"/api/agents/agent-1/messages", "application/json",
		strings.NewReader(`{"text":""}`))

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, agents, _, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1"}}

	// Act: write the context, then read it back.
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/agents/agent-1/context",
		strings.NewReader(`{"value":"Caller prefers Spanish."}`))
	require.NoError(t, err)
	putRes, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	putRes.Body.Close()

	getRes, err := http.Get(ts.URL + "/api/agents/agent-1/context")

	// Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getRes.StatusCode)
	block := decode[agentapi.Block](t, getRes)
	require.Equal(t, agentapi.ContextBlockLabel, block.Label)
	require.Equal(t, "Caller prefers Spanish.", block.Value)
}

func multipartBody(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadFile(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, _, _, _ := newTestServer(t)
	body, contentType := multipartBody(t, "file", "menu.txt", "pizza margherita")

	// Act
	res, err := http.Post(ts.URL+"/api/files", contentType, body)

	// Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	item := decode[uploads.Item](t, res)
	require.Equal(t, "menu.txt", item.Name)
	require.Equal(t, int64(len("pizza margherita")), item.Size)
}

func TestUploadFile_WrongField(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)
	body, contentType := multipartBody(t, "attachment", "menu.txt", "x")

	res, err := http.Post(ts.URL+"/api/files", contentType, body)

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUploadFile_TooLarge(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, _, files, _ := newTestServer(t)
	files.saveErr = uploads.ErrTooLarge
	body, contentType := multipartBody(t, "file", "huge.bin", "x")

	// Act
	res, err := http.Post(ts.URL+"/api/files", contentType, body)

	// Assert
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
}

func TestAttachFiles(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, agents, files, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1"}}

	// Act
	res, err := http.Post(ts.URL+"/api/agents/agent-1/files", "application/json", nil)

	// Assert
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, []string{"agent-1"}, files.attached)
}

func TestDeleteFile_NotFound(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/files/missing", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCallLifecycle(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, _, _, _ := newTestServer(t)

	// Act: start, fetch and hang up a call.
	startRes, err := http.Post(ts.URL+"/api/calls", "application/json",
		strings.NewReader(`{"agent_id":"agent-1","phone_number":"+15550001111"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, startRes.StatusCode)
	started := decode[bridge.Call](t, startRes)

	getRes, err := http.Get(ts.URL + "/api/calls/" + started.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getRes.StatusCode)
	getRes.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/calls/"+started.ID, nil)
	require.NoError(t, err)
	hangupRes, err := http.DefaultClient.Do(req)

	// Assert
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, hangupRes.StatusCode)
	ended := decode[bridge.Call](t, hangupRes)
	require.Equal(t, bridge.StateEnded, ended.State)
}

func TestStartCall_MissingFields(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	res, err := http.Post(ts.URL+"/api/calls", "application/json",
		strings.NewReader(`{"agent_id":"agent-1"}`))

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetCall_NotFound(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/calls/missing")

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestToken(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/token?room=call-abc&identity=panel")

	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	token := decode[httpd.TokenResponse](t, res)
	require.NotEmpty(t, token.Token)
	require.NotEmpty(t, token.URL)
}

func TestToken_MissingParams(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/token?room=call-abc")

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestStaticUI(t *testing.T) {
	t.Parallel()
	ts, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/")

	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "<title>QuickCall</title>")
}

func TestTranscriptWS(t *testing.T) {
	t.Parallel()
	// Arrange
	ts, agents, _, _ := newTestServer(t)
	agents.agents = []agentapi.Agent{{ID: "agent-1"}}
	agents.messages["agent-1"] = []agentapi.Message{
		{ID: "m1", MessageType: agentapi.MessageTypeUser, Content: "hello?", Date: time.Now()},
	}

	// Act
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/agents/agent-1/transcript"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Assert: the history entry arrives over the socket.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var entry transcript.Entry
	require.NoError(t, conn.ReadJSON(&entry))
	require.Equal(t, "m1", entry.ID)
	require.Equal(t, "user", entry.Role)
	require.Equal(t, "hello?", entry.Text)
}
