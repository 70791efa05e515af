package query

import (
	"time"

	"github.com/roach88/rootstore/internal/ir"
)

// Filter is the caller-facing query over stored events. Zero-valued fields
// do not constrain the result.
type Filter struct {
	Root        string `json:"root,omitempty"`
	Action      string `json:"action,omitempty"`
	Topic       string `json:"topic,omitempty"`
	Idempotency string `json:"idempotency,omitempty"`

	// FromNumber and BeforeNumber bound the event number: [From, Before).
	FromNumber   *int64 `json:"fromNumber,omitempty"`
	BeforeNumber *int64 `json:"beforeNumber,omitempty"`

	// SavedFrom and SavedBefore bound the saved timestamp: [From, Before).
	SavedFrom   time.Time `json:"savedFrom,omitzero"`
	SavedBefore time.Time `json:"savedBefore,omitzero"`

	// Payload matches events whose payload contains every given field.
	// Nested objects match field by field.
	Payload ir.IRObject `json:"payload,omitempty"`

	// Expr is a CEL boolean expression evaluated per event. See NewExpr.
	Expr string `json:"expr,omitempty"`

	// Limit caps the number of SQL rows read. Zero means unlimited.
	Limit int `json:"limit,omitempty"`
}

// Predicate lowers the filter's SQL-expressible fields to a predicate tree.
// Expr and Limit are not part of it.
func (f Filter) Predicate() Predicate {
	var preds []Predicate
	for _, col := range []struct {
		field string
		value string
	}{
		{"root", f.Root},
		{"action", f.Action},
		{"topic", f.Topic},
		{"idempotency", f.Idempotency},
	} {
		if col.value != "" {
			preds = append(preds, Equals{Field: col.field, Value: ir.IRString(col.value)})
		}
	}

	if f.FromNumber != nil || f.BeforeNumber != nil {
		preds = append(preds, Range{Field: "number", From: f.FromNumber, Before: f.BeforeNumber})
	}
	if !f.SavedFrom.IsZero() || !f.SavedBefore.IsZero() {
		r := Range{Field: "saved"}
		if !f.SavedFrom.IsZero() {
			ms := f.SavedFrom.UnixMilli()
			r.From = &ms
		}
		if !f.SavedBefore.IsZero() {
			ms := f.SavedBefore.UnixMilli()
			r.Before = &ms
		}
		preds = append(preds, r)
	}

	preds = appendPayloadPredicates(preds, "", f.Payload)
	return And{Predicates: preds}
}

// appendPayloadPredicates flattens nested objects into dotted paths, in
// sorted key order so the compiled SQL is stable.
func appendPayloadPredicates(preds []Predicate, prefix string, obj ir.IRObject) []Predicate {
	for _, k := range obj.SortedKeys() {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := obj[k].(ir.IRObject); ok {
			preds = appendPayloadPredicates(preds, path, nested)
			continue
		}
		preds = append(preds, PayloadEquals{Path: path, Value: obj[k]})
	}
	return preds
}
