package mcp

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	schemaSampleValueLimit = 3
	schemaSampleValueWidth = 100
)

type fieldSchema struct {
	Types                []string `json:"types"`
	OccurrenceCount      int      `json:"occurrence_count"`
	OccurrencePercentage float64  `json:"occurrence_percentage"`
	SampleValues         []string `json:"sample_values"`
}

// inferSchema derives a per-field type summary from sampled documents.
// Sample values are stringified and clipped so no document payload leaks
// into the summary at full size.
func inferSchema(docs []map[string]any) map[string]fieldSchema {
	type accumulator struct {
		types   map[string]bool
		count   int
		samples []string
	}
	fields := make(map[string]*accumulator)
	for _, doc := range docs {
		for key, value := range doc {
			acc, ok := fields[key]
			if !ok {
				acc = &accumulator{types: make(map[string]bool)}
				fields[key] = acc
			}
			acc.types[bsonTypeName(value)] = true
			acc.count++
			if value != nil && len(acc.samples) < schemaSampleValueLimit {
				sample := clipString(fmt.Sprintf("%v", value), schemaSampleValueWidth)
				duplicate := false
				for _, existing := range acc.samples {
					if existing == sample {
						duplicate = true
						break
					}
				}
				if !duplicate {
					acc.samples = append(acc.samples, sample)
				}
			}
		}
	}

	out := make(map[string]fieldSchema, len(fields))
	for key, acc := range fields {
		types := make([]string, 0, len(acc.types))
		for name := range acc.types {
			types = append(types, name)
		}
		sort.Strings(types)
		percentage := 0.0
		if len(docs) > 0 {
			percentage = math.Round(float64(acc.count)/float64(len(docs))*10000) / 100
		}
		samples := acc.samples
		if samples == nil {
			samples = []string{}
		}
		out[key] = fieldSchema{
			Types:                types,
			OccurrenceCount:      acc.count,
			OccurrencePercentage: percentage,
			SampleValues:         samples,
		}
	}
	return out
}

func bsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int32, int:
		return "int"
	case int64:
		return "long"
	case float64, float32:
		return "double"
	case string:
		return "string"
	case bson.A, []any:
		return "array"
	case map[string]any, bson.M, bson.D:
		return "object"
	case bson.DateTime, time.Time:
		return "date"
	case bson.ObjectID:
		return "objectId"
	case bson.Decimal128:
		return "decimal"
	case bson.Binary:
		return "binData"
	case bson.Regex:
		return "regex"
	case bson.Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func clipString(s string, width int) string {
	if len(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width])
}
