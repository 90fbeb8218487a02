package a2a

import (
	"fmt"
	"strings"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MCPContextKey is the metadata key under which a client injects
// opaque MCP context into a message without mutating the original.
const MCPContextKey = "mcp_context"

// Message carries a role, a non-empty list of parts, and optional
// metadata. Messages are semantically immutable: callers that need to
// attach context construct a new message with merged metadata instead
// of mutating an existing one.
type Message struct {
	Role     Role           `json:"role"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewTextMessage(role Role, text string) *Message {
	return &Message{Role: role, Parts: []Part{NewTextPart(text)}}
}

func NewFileMessage(role Role, file *FilePart) *Message {
	return &Message{Role: role, Parts: []Part{NewFilePart(file)}}
}

func NewDataMessage(role Role, data map[string]any) *Message {
	return &Message{Role: role, Parts: []Part{NewDataPart(data, "")}}
}

// WithMCPContext returns a copy of the message with the given context
// merged into its metadata under MCPContextKey. The receiver is left
// untouched.
func (msg *Message) WithMCPContext(ctx map[string]any) *Message {
	metadata := make(map[string]any, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	metadata[MCPContextKey] = ctx
	return &Message{Role: msg.Role, Parts: msg.Parts, Metadata: metadata}
}

func (msg *Message) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", msg.Role))
	for _, part := range msg.Parts {
		sb.WriteString(part.String())
	}
	return sb.String()
}
