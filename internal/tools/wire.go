// Package tools is the dispatch engine: the tool catalog, the single
// entry point that turns a model-issued tool call into a validated state
// mutation, and the per-tool handlers.
//
// The wire contract is text both ways: arguments arrive as JSON (malformed
// input degrades to an empty object, never an exception) and every outcome
// leaves as a JSON object, either {ok:true,...} or {ok:false,error:{...}}.
// The model must be able to reason about failures textually, so nothing
// escapes the dispatcher as a fault.
package tools

import (
	"encoding/json"
	"fmt"
)

// Error codes on the tool wire.
const (
	CodeBadToolArgs       = "BAD_TOOL_ARGS"
	CodeBadToolSequence   = "BAD_TOOL_SEQUENCE"
	CodeUnknownTool       = "UNKNOWN_TOOL"
	CodeToolDisabled      = "TOOL_DISABLED"
	CodeToolDeprecated    = "TOOL_DEPRECATED"
	CodeBlockNotFound     = "BLOCK_NOT_FOUND"
	CodeRangeNotFound     = "RANGE_NOT_FOUND"
	CodePlanIncomplete    = "PLAN_INCOMPLETE"
	CodeClassifierDown    = "CLASSIFIER_UNAVAILABLE"
	CodeStreamDown        = "TRANSLATE_STREAM_UNAVAILABLE"
	CodeSelectorDown      = "CATEGORY_SELECTOR_UNAVAILABLE"
	CodeNoImprovement     = "NO_IMPROVEMENT"
	CodeNoImprovementCool = "NO_IMPROVEMENT_COOLDOWN"
	CodeAgentNoProgress   = "AGENT_NO_PROGRESS"
	CodeAgentRepeatLoop   = "AGENT_REPEAT_LOOP"
	CodeInternal          = "INTERNAL"
)

// ToolError is a structured refusal. Handlers return it (or a collaborator
// error that maps onto it) and the dispatcher serializes it.
type ToolError struct {
	Code    string
	Message string
	Extra   map[string]any
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds a ToolError.
func Errf(code, format string, args ...any) *ToolError {
	return &ToolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithExtra attaches a wire field to the error object.
func (e *ToolError) WithExtra(key string, val any) *ToolError {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = val
	return e
}

// okJSON serializes a success result. Fields may be nil.
func okJSON(fields map[string]any) string {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["ok"] = true
	return mustJSON(out)
}

// errJSON serializes a refusal result.
func errJSON(e *ToolError) string {
	errObj := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	for k, v := range e.Extra {
		errObj[k] = v
	}
	return mustJSON(map[string]any{"ok": false, "error": errObj})
}

// mustJSON marshals, falling back to a minimal error object on the
// (unreachable with these value types) marshal failure.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"ok":false,"error":{"code":"INTERNAL","message":"result serialization failed"}}`
	}
	return string(data)
}

// parseArgs turns the raw argument payload into a JSON object, defensively.
// Accepts a map, a JSON text (possibly double-encoded by the model), raw
// bytes, or nothing. Malformed input degrades to an empty object.
func parseArgs(raw any) json.RawMessage {
	switch v := raw.(type) {
	case nil:
		return json.RawMessage("{}")
	case json.RawMessage:
		if isJSONObject(v) {
			return v
		}
	case []byte:
		if isJSONObject(v) {
			return json.RawMessage(v)
		}
	case string:
		if isJSONObject([]byte(v)) {
			return json.RawMessage(v)
		}
		// Models sometimes double-encode: a JSON string holding an object.
		var inner string
		if err := json.Unmarshal([]byte(v), &inner); err == nil && isJSONObject([]byte(inner)) {
			return json.RawMessage(inner)
		}
	case map[string]any:
		if data, err := json.Marshal(v); err == nil {
			return json.RawMessage(data)
		}
	}
	return json.RawMessage("{}")
}

func isJSONObject(data []byte) bool {
	var m map[string]any
	return json.Unmarshal(data, &m) == nil
}

// decodeArgs unmarshals an argument object into a handler's typed struct.
func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return Errf(CodeBadToolArgs, "invalid arguments: %v", err)
	}
	return nil
}
