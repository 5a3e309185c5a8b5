package mcp

import (
	"context"
	"encoding/json"

	"go.mongodb.org/mongo-driver/v2/bson"

	"pkt.systems/mongomcp/internal/mongodb"
)

// QueryLimits bounds every result set returned by the facade. Built once at
// startup from configuration and never mutated.
type QueryLimits struct {
	MaxDocuments int
	MaxBytes     int64
}

// withByteCap lowers the byte ceiling for a single call when the caller
// supplied a smaller responseBytesLimit. The process-wide ceiling always
// wins.
func (l QueryLimits) withByteCap(cap int64) QueryLimits {
	if cap > 0 && cap < l.MaxBytes {
		l.MaxBytes = cap
	}
	return l
}

// TruncationReason tells the caller which ceiling stopped iteration.
type TruncationReason string

const (
	// TruncationNone marks an exhausted cursor.
	TruncationNone TruncationReason = "none"
	// TruncationDocumentCount marks a result cut at MaxDocuments.
	TruncationDocumentCount TruncationReason = "documentCountExceeded"
	// TruncationByteLimit marks a result cut before exceeding MaxBytes.
	TruncationByteLimit TruncationReason = "byteLimitExceeded"
)

// BoundedResult is a truncation-aware slice of serialized documents.
// Truncation is informational, never an error: partial results are returned
// with the flag set.
type BoundedResult struct {
	Documents []json.RawMessage
	Truncated bool
	Reason    TruncationReason
}

// boundCursor consumes cur incrementally, serializing each document to
// extended JSON (canonical or relaxed) and accumulating until either limit
// would be exceeded. The triggering document and the remainder of the cursor
// are discarded, so a pathologically large result never fully buffers. The
// cursor is always closed.
func boundCursor(ctx context.Context, cur mongodb.Cursor, limits QueryLimits, canonical bool) (BoundedResult, error) {
	defer cur.Close(ctx)

	result := BoundedResult{Reason: TruncationNone}
	var used int64
	for cur.Next(ctx) {
		if len(result.Documents) >= limits.MaxDocuments {
			result.Truncated = true
			result.Reason = TruncationDocumentCount
			return result, nil
		}
		encoded, err := bson.MarshalExtJSON(cur.Current(), canonical, false)
		if err != nil {
			return BoundedResult{}, validationf("serialize result document: %v", err)
		}
		if used+int64(len(encoded)) > limits.MaxBytes {
			result.Truncated = true
			result.Reason = TruncationByteLimit
			return result, nil
		}
		used += int64(len(encoded))
		result.Documents = append(result.Documents, json.RawMessage(encoded))
	}
	if err := cur.Err(); err != nil {
		return BoundedResult{}, err
	}
	return result, nil
}
