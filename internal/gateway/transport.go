package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Transport is the protocol layer that physically talks to a tool
// process. It is external to this layer; the gateway only bounds it with
// a timeout and interprets its errors.
type Transport interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// flattenResult serializes a tool result down to the bytes the gateway
// prices against the size threshold. Text content parses through
// unchanged; anything else falls back to its JSON encoding.
func flattenResult(result *mcp.CallToolResult) ([]byte, error) {
	if result == nil || len(result.Content) == 0 {
		return nil, nil
	}
	if len(result.Content) == 1 {
		if text, ok := mcp.AsTextContent(result.Content[0]); ok {
			return []byte(text.Text), nil
		}
	}

	parts := make([]json.RawMessage, 0, len(result.Content))
	for _, c := range result.Content {
		if text, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, json.RawMessage(jsonString(text.Text)))
			continue
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize tool content: %w", err)
		}
		parts = append(parts, raw)
	}
	return json.Marshal(parts)
}

func jsonString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

// resultError extracts the error text of a result flagged IsError.
func resultError(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return "tool reported an error with no detail"
	}
	if text, ok := mcp.AsTextContent(result.Content[0]); ok {
		return text.Text
	}
	return "tool reported an error with non-text detail"
}

// describeTransportError turns a transport error into a single actionable
// line. The consumer is a language model, so the wording matters more
// than the type: connection-level failures and timeouts get called out,
// everything else passes through trimmed of stack noise.
func describeTransportError(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.TrimSpace(err.Error())
	low := strings.ToLower(msg)

	for _, pat := range []string{
		"broken pipe", "connection refused", "connection reset",
		"file already closed", "transport error", "connection timed out",
	} {
		if strings.Contains(low, pat) {
			return "the tool backend is unreachable (" + pat + ")"
		}
	}
	if strings.Contains(low, "deadline exceeded") || strings.Contains(low, "context canceled") {
		return "the call timed out before the tool responded"
	}

	// Keep only the first line of whatever the tool said.
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
