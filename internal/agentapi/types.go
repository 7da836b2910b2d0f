package agentapi

import "time"

// Agent is a conversational agent hosted on the platform.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is a single transcript entry. The platform emits several message
// types; the panel cares about user text, assistant text and tool activity.
type MessageType string

const (
	MessageTypeUser       MessageType = "user_message"
	MessageTypeAssistant  MessageType = "assistant_message"
	MessageTypeReasoning  MessageType = "reasoning_message"
	MessageTypeToolCall   MessageType = "tool_call_message"
	MessageTypeToolReturn MessageType = "tool_return_message"
)

type Message struct {
	ID          string      `json:"id"`
	Date        time.Time   `json:"date"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content,omitempty"`
	ToolCall    *ToolCall   `json:"tool_call,omitempty"`
	ToolReturn  string      `json:"tool_return,omitempty"`
}

// ToolCall carries the name and raw arguments of a tool invocation.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Block is a core-memory block. The panel's editable "context" is the
// agent's human block.
type Block struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Limit int    `json:"limit,omitempty"`
}

// ContextBlockLabel is the block the panel exposes for editing.
const ContextBlockLabel = "human"

// Source is a named collection of files the agent can draw on.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// File is a document uploaded into a source.
type File struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	FileName  string    `json:"file_name"`
	FileSize  int64     `json:"file_size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
