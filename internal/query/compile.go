package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/rootstore/internal/ir"
)

// OrderBy is appended to every compiled clause.
const OrderBy = "ORDER BY root ASC, number ASC"

var (
	textColumns = map[string]bool{
		"id":          true,
		"root":        true,
		"action":      true,
		"topic":       true,
		"idempotency": true,
		"hash":        true,
	}
	intColumns = map[string]bool{
		"number": true,
		"saved":  true,
	}
	pathSegment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Compile converts a predicate to a clause for store.SelectEvents:
// "WHERE ... ORDER BY root ASC, number ASC [LIMIT ?]".
// Returns (clause, params, error).
//
// All values are parameterized (never interpolated).
func Compile(p Predicate, limit int) (string, []any, error) {
	where, params, err := compilePredicate(p)
	if err != nil {
		return "", nil, err
	}

	clause := "WHERE " + where + " " + OrderBy
	if limit > 0 {
		clause += " LIMIT ?"
		params = append(params, limit)
	}
	return clause, params, nil
}

// CompileFilter is Compile over f.Predicate() with f.Limit.
func CompileFilter(f Filter) (string, []any, error) {
	return Compile(f.Predicate(), f.Limit)
}

func compilePredicate(p Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case Equals:
		return compileEquals(pred)
	case PayloadEquals:
		return compilePayloadEquals(pred)
	case Range:
		return compileRange(pred)
	case And:
		return compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq Equals) (string, []any, error) {
	if !textColumns[eq.Field] && !intColumns[eq.Field] {
		return "", nil, fmt.Errorf("unknown column %q", eq.Field)
	}
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("column %q: %w", eq.Field, err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func compilePayloadEquals(eq PayloadEquals) (string, []any, error) {
	segments := strings.Split(eq.Path, ".")
	for _, seg := range segments {
		if !pathSegment.MatchString(seg) {
			return "", nil, fmt.Errorf("invalid payload path %q", eq.Path)
		}
	}
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("payload %q: %w", eq.Path, err)
	}
	return "json_extract(payload, ?) = ?", []any{"$." + eq.Path, param}, nil
}

func compileRange(r Range) (string, []any, error) {
	if !intColumns[r.Field] {
		return "", nil, fmt.Errorf("range on non-integer column %q", r.Field)
	}

	var parts []string
	var params []any
	if r.From != nil {
		parts = append(parts, r.Field+" >= ?")
		params = append(params, *r.From)
	}
	if r.Before != nil {
		parts = append(parts, r.Field+" < ?")
		params = append(params, *r.Before)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

func compileAnd(and And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // vacuous truth
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

// irValueToParam converts a scalar ir.IRValue to a SQL parameter.
// Arrays, objects and nulls have no stable SQL comparison and are rejected.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for comparison: %T", v)
	}
}
