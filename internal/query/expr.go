package query

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/roach88/rootstore/internal/ir"
)

// Expr is a compiled CEL filter. The expression sees:
//
//	root    string
//	number  int
//	action  string
//	topic   string
//	saved   int (unix milliseconds)
//	payload map
//	headers map
//
// A nil *Expr matches every event.
type Expr struct {
	source string
	prog   cel.Program
}

// NewExpr compiles a boolean CEL expression. An empty expression returns nil.
func NewExpr(expr string) (*Expr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("root", cel.StringType),
		cel.Variable("number", cel.IntType),
		cel.Variable("action", cel.StringType),
		cel.Variable("topic", cel.StringType),
		cel.Variable("saved", cel.IntType),
		cel.Variable("payload", cel.DynType),
		cel.Variable("headers", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("parse %q: %w", expr, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("check %q: %w", expr, iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) && !checked.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q must be boolean, got %s", expr, checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Expr{source: expr, prog: prog}, nil
}

// String returns the expression source.
func (x *Expr) String() string {
	if x == nil {
		return ""
	}
	return x.source
}

// Match evaluates the expression against e. Evaluation errors (a missing
// payload key, for instance) are returned rather than treated as false.
func (x *Expr) Match(e ir.Event) (bool, error) {
	if x == nil {
		return true, nil
	}
	payload := e.Payload
	if payload == nil {
		payload = ir.IRObject{}
	}
	out, _, err := x.prog.Eval(map[string]any{
		"root":    e.Root,
		"number":  e.Number,
		"action":  e.Headers.Action,
		"topic":   e.Headers.Topic,
		"saved":   e.Saved.UnixMilli(),
		"payload": ir.Native(payload),
		"headers": ir.Native(e.Headers.IR()),
	})
	if err != nil {
		return false, fmt.Errorf("eval %q on %s: %w", x.source, e.ID, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q on %s: non-boolean result %v", x.source, e.ID, out.Value())
	}
	return b, nil
}

// Apply keeps the events that match x, preserving order.
func (x *Expr) Apply(events []ir.Event) ([]ir.Event, error) {
	if x == nil {
		return events, nil
	}
	out := make([]ir.Event, 0, len(events))
	for _, e := range events {
		ok, err := x.Match(e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}
