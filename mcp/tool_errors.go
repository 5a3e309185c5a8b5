package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/mongomcp/internal/mongodb"
)

// ValidationError reports malformed or out-of-range tool arguments. Always
// recoverable by the caller; Allowed lists the accepted values or shapes when
// a closed set was violated.
type ValidationError struct {
	Detail  string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) == 0 {
		return e.Detail
	}
	return fmt.Sprintf("%s (expected %s)", e.Detail, strings.Join(e.Allowed, "|"))
}

func validationf(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}

// PolicyError reports an operation forbidden by read-only or index policy.
// The operation never reaches the database.
type PolicyError struct {
	Detail string
}

func (e *PolicyError) Error() string { return e.Detail }

func policyf(format string, args ...any) error {
	return &PolicyError{Detail: fmt.Sprintf(format, args...)}
}

type toolErrorEnvelope struct {
	ErrorCode string   `json:"error_code"`
	Detail    string   `json:"detail,omitempty"`
	Allowed   []string `json:"allowed,omitempty"`
	Retryable bool     `json:"retryable"`
}

func withStructuredToolErrors[In, Out any](name string, m *facadeMetrics, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		m.toolInvoked(name)
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		envelope := classifyToolError(err)
		m.toolFailed(name, envelope.ErrorCode)
		var zero Out
		return nil, zero, toolError{Envelope: envelope}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	encoded, err := json.Marshal(map[string]any{"error": e.Envelope})
	if err != nil {
		return `{"error":{"error_code":"tool_error","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

func classifyToolError(err error) toolErrorEnvelope {
	env := toolErrorEnvelope{ErrorCode: "tool_error", Detail: strings.TrimSpace(err.Error())}

	var validation *ValidationError
	if errors.As(err, &validation) {
		env.ErrorCode = "invalid_argument"
		env.Detail = strings.TrimSpace(validation.Detail)
		env.Allowed = validation.Allowed
		return env
	}
	var policy *PolicyError
	if errors.As(err, &policy) {
		env.ErrorCode = "policy_violation"
		env.Detail = strings.TrimSpace(policy.Detail)
		return env
	}
	var collaborator *mongodb.Error
	if errors.As(err, &collaborator) {
		// Legacy instances can be fragile; surface the driver message and
		// leave any retry decision to the caller.
		env.ErrorCode = "upstream_error"
		return env
	}
	if errors.Is(err, context.DeadlineExceeded) {
		env.ErrorCode = "timeout"
		env.Retryable = true
		return env
	}
	lower := strings.ToLower(env.Detail)
	switch {
	case strings.Contains(lower, "required"),
		strings.Contains(lower, "must be"),
		strings.Contains(lower, "invalid"),
		strings.Contains(lower, "decode "):
		env.ErrorCode = "invalid_argument"
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		env.ErrorCode = "timeout"
		env.Retryable = true
	case strings.Contains(lower, "temporar"), strings.Contains(lower, "try again"):
		env.ErrorCode = "unavailable"
		env.Retryable = true
	}
	return env
}
