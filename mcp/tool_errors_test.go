package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/mongomcp/internal/mongodb"
)

func TestClassifyToolError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantCode      string
		wantRetryable bool
	}{
		{
			name:     "validation error",
			err:      validationf("limit must not be negative"),
			wantCode: "invalid_argument",
		},
		{
			name:     "wrapped validation error",
			err:      fmt.Errorf("handler: %w", validationf("database is required")),
			wantCode: "invalid_argument",
		},
		{
			name:     "policy error",
			err:      policyf("mutating aggregation stage $out forbidden in read-only mode"),
			wantCode: "policy_violation",
		},
		{
			name:     "upstream error",
			err:      &mongodb.Error{Op: "find", Err: errors.New("no reachable servers")},
			wantCode: "upstream_error",
		},
		{
			name:          "deadline exceeded",
			err:           context.DeadlineExceeded,
			wantCode:      "timeout",
			wantRetryable: true,
		},
		{
			name:          "timeout by message",
			err:           errors.New("operation timeout waiting for reply"),
			wantCode:      "timeout",
			wantRetryable: true,
		},
		{
			name:     "invalid by message",
			err:      errors.New("invalid sort specification"),
			wantCode: "invalid_argument",
		},
		{
			name:     "unclassified",
			err:      errors.New("something odd"),
			wantCode: "tool_error",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := classifyToolError(tc.err)
			if env.ErrorCode != tc.wantCode {
				t.Fatalf("code = %q, want %q", env.ErrorCode, tc.wantCode)
			}
			if env.Retryable != tc.wantRetryable {
				t.Fatalf("retryable = %v, want %v", env.Retryable, tc.wantRetryable)
			}
		})
	}
}

func TestClassifyToolErrorCarriesAllowedValues(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Detail: "invalid verbosity", Allowed: explainVerbosities}
	env := classifyToolError(err)
	if len(env.Allowed) != len(explainVerbosities) {
		t.Fatalf("allowed = %v, want %v", env.Allowed, explainVerbosities)
	}
}

func TestToolErrorEnvelopeIsJSON(t *testing.T) {
	t.Parallel()

	wrapped := toolError{Envelope: classifyToolError(policyf("query rejected"))}
	var decoded map[string]toolErrorEnvelope
	if err := json.Unmarshal([]byte(wrapped.Error()), &decoded); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if decoded["error"].ErrorCode != "policy_violation" {
		t.Fatalf("decoded code = %q", decoded["error"].ErrorCode)
	}
}

func TestWithStructuredToolErrorsWrapsFailure(t *testing.T) {
	t.Parallel()

	handler := func(context.Context, *mcpsdk.CallToolRequest, struct{}) (*mcpsdk.CallToolResult, struct{}, error) {
		return nil, struct{}{}, validationf("database is required")
	}
	wrapped := withStructuredToolErrors("find", nil, handler)
	_, _, err := wrapped(context.Background(), nil, struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	var decoded map[string]toolErrorEnvelope
	if jsonErr := json.Unmarshal([]byte(err.Error()), &decoded); jsonErr != nil {
		t.Fatalf("wrapped error is not a JSON envelope: %v", jsonErr)
	}
	if decoded["error"].ErrorCode != "invalid_argument" {
		t.Fatalf("decoded code = %q", decoded["error"].ErrorCode)
	}
}

func TestWithStructuredToolErrorsPassesSuccess(t *testing.T) {
	t.Parallel()

	handler := func(context.Context, *mcpsdk.CallToolRequest, struct{}) (*mcpsdk.CallToolResult, int, error) {
		return nil, 42, nil
	}
	wrapped := withStructuredToolErrors("find", nil, handler)
	_, out, err := wrapped(context.Background(), nil, struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 42 {
		t.Fatalf("out = %d, want 42", out)
	}
}
