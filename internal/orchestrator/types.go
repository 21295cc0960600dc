package orchestrator

import (
	"context"
)

// Responder is the agent-response collaborator. Any error is turned into the
// fallback apology turn by the caller.
type Responder interface {
	Respond(ctx context.Context, req Request) (*Response, error)
}

// HistoryTurn is one prior turn sent for context
type HistoryTurn struct {
	Role    string `json:"role"` // user, agent
	Content string `json:"content"`
}

// AttachmentRef describes a file sent along with the turn
type AttachmentRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Request is the composed turn handed to the agent
type Request struct {
	ConversationID      string          `json:"conversation_id"`
	AgentID             string          `json:"agent_id,omitempty"`
	Text                string          `json:"text"`
	History             []HistoryTurn   `json:"history"`
	Attachments         []AttachmentRef `json:"attachments,omitempty"`
	Tools               []string        `json:"tools,omitempty"`
	OriginatedFromVoice bool            `json:"originated_from_voice"`
}

// Response is the agent's complete reply
type Response struct {
	Text           string          `json:"text"`
	ConversationID string          `json:"conversation_id,omitempty"`
	ReasoningSteps []ReasoningStep `json:"reasoning_steps,omitempty"`
	SubAgentCalls  []SubAgentCall  `json:"sub_agent_calls,omitempty"`
	ToolCalls      []ToolCall      `json:"tool_calls,omitempty"`
	ToolResults    []ToolResult    `json:"tool_results,omitempty"`
	TotalTokens    int32           `json:"total_tokens,omitempty"`
}

// ReasoningStep is one annotated step of the agent's reasoning
type ReasoningStep struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// SubAgentCall annotates work delegated to another agent
type SubAgentCall struct {
	Agent  string `json:"agent"`
	Task   string `json:"task,omitempty"`
	Result string `json:"result,omitempty"`
}

// ToolCall represents a tool call made by the agent
type ToolCall struct {
	ToolName       string `json:"tool_name"`
	ParametersJSON string `json:"parameters_json,omitempty"`
	CallID         string `json:"call_id"`
}

// ToolResult represents a tool execution result
type ToolResult struct {
	CallID       string `json:"call_id"`
	ResultJSON   string `json:"result_json,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Error represents an error reported by the agent backend
type Error struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	DetailsJSON string `json:"details_json,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return "agent error: " + e.Message
	}
	return "agent error " + e.Code + ": " + e.Message
}

// Frame types on the streaming transport
const (
	FrameChunk      = "chunk"
	FrameReasoning  = "reasoning"
	FrameSubAgent   = "sub_agent"
	FrameToolCall   = "tool_call"
	FrameToolResult = "tool_result"
	FrameDone       = "done"
	FrameError      = "error"
)

// StreamFrame is one message received from the streaming agent transport
type StreamFrame struct {
	Type           string         `json:"type"`
	TextChunk      string         `json:"text_chunk,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	TotalTokens    int32          `json:"total_tokens,omitempty"`
	Reasoning      *ReasoningStep `json:"reasoning,omitempty"`
	SubAgent       *SubAgentCall  `json:"sub_agent,omitempty"`
	ToolCall       *ToolCall      `json:"tool_call,omitempty"`
	ToolResult     *ToolResult    `json:"tool_result,omitempty"`
	Error          *Error         `json:"error,omitempty"`
}
