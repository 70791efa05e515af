package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/rootstore/internal/ir"
)

// marshalObject converts an IRObject to canonical JSON TEXT for storage.
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which keeps integers as int64 via
// json.Number instead of losing precision through float64.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

// marshalJSON encodes struct-shaped columns (headers, string lists) with
// HTML escaping disabled.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	// Encoder adds a trailing newline
	return strings.TrimSpace(buf.String()), nil
}

func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	return marshalJSON(list)
}

func unmarshalStrings(data string) ([]string, error) {
	list := []string{}
	if data == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal string list: %w", err)
	}
	return list, nil
}

func unmarshalHeaders(data string) (ir.Headers, error) {
	var h ir.Headers
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return ir.Headers{}, fmt.Errorf("unmarshal headers: %w", err)
	}
	return h, nil
}

// millis converts a stored unix-millisecond column back to UTC time.
func millis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
