package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rootstore/internal/eventstore"
	"github.com/roach88/rootstore/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			switch {
			case ev.Error != "":
				fmt.Fprintf(&buf, "  [%d] %s %s %s -> %s\n", ev.Step, ev.Op, ev.Root, ev.Action, ev.Error)
			case ev.Op == OpCreateBlock:
				fmt.Fprintf(&buf, "  [%d] %s #%d (%d roots)\n", ev.Step, ev.Op, ev.Number, ev.Count)
			default:
				fmt.Fprintf(&buf, "  [%d] %s %s #%d %s\n", ev.Step, ev.Op, ev.Root, ev.Number, ev.Action)
			}
		}
	}

	return buf.String()
}

// assertAggregate folds the root and compares state and last event number.
func assertAggregate(ctx context.Context, es *eventstore.Store, a Assertion) error {
	agg, err := es.Aggregate(ctx, a.Root)
	if err != nil {
		return err
	}
	if agg == nil {
		return &AssertionError{
			Type:     AssertAggregate,
			Expected: fmt.Sprintf("aggregate for %s", a.Root),
			Actual:   "root has no events",
		}
	}

	if a.LastEventNumber != nil && agg.LastEventNumber != *a.LastEventNumber {
		return &AssertionError{
			Type:     AssertAggregate,
			Expected: fmt.Sprintf("%s last event number %d", a.Root, *a.LastEventNumber),
			Actual:   fmt.Sprintf("%d", agg.LastEventNumber),
		}
	}

	if a.State != nil {
		want, err := toObject(a.State)
		if err != nil {
			return fmt.Errorf("aggregate assertion for %s: state: %w", a.Root, err)
		}
		if !agg.State.Equal(want) {
			wantStr, _ := ir.CanonicalString(want)
			gotStr, _ := ir.CanonicalString(agg.State)
			return &AssertionError{
				Type:     AssertAggregate,
				Expected: fmt.Sprintf("%s state %s", a.Root, wantStr),
				Actual:   gotStr,
			}
		}
	}
	return nil
}

// assertCount checks the root's reserved numbers.
func assertCount(ctx context.Context, es *eventstore.Store, a Assertion) error {
	n, err := es.Count(ctx, a.Root)
	if err != nil {
		return err
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%s count %d", a.Root, a.Count),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertEvents checks the root's stored actions in number order.
func assertEvents(ctx context.Context, es *eventstore.Store, a Assertion) error {
	actions := []string{}
	err := es.Stream(ctx, eventstore.StreamOptions{
		Root: a.Root,
		Fn: func(_ context.Context, e ir.Event) error {
			actions = append(actions, e.Headers.Action)
			return nil
		},
	})
	if err != nil {
		return err
	}
	want := a.Actions
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(actions, want) {
		return &AssertionError{
			Type:     AssertEvents,
			Expected: fmt.Sprintf("%s actions %v", a.Root, want),
			Actual:   fmt.Sprintf("%v", actions),
		}
	}
	return nil
}

// assertChainValid verifies the block chain and its length.
func assertChainValid(ctx context.Context, es *eventstore.Store, a Assertion) error {
	n, err := es.VerifyChain(ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: "intact block chain",
			Actual:   err.Error(),
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: fmt.Sprintf("%d blocks", a.Count),
			Actual:   fmt.Sprintf("%d blocks", n),
		}
	}
	return nil
}

// assertTraceCount checks how many trace entries have the given op.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op && ev.Error == "" {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d successful %s steps", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the store and result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, es *eventstore.Store, result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertAggregate:
			err = assertAggregate(ctx, es, a)
		case AssertCount:
			err = assertCount(ctx, es, a)
		case AssertEvents:
			err = assertEvents(ctx, es, a)
		case AssertChainValid:
			err = assertChainValid(ctx, es, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
