package harness

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/roach88/rootstore/internal/aggregate"
	"github.com/roach88/rootstore/internal/eventstore"
	"github.com/roach88/rootstore/internal/ir"
	"github.com/roach88/rootstore/internal/schema"
	"github.com/roach88/rootstore/internal/store"
	"github.com/roach88/rootstore/internal/testutil"
)

// Defaults applied when a scenario leaves domain or service empty.
const (
	DefaultDomain  = "ledger"
	DefaultService = "accounts"
)

// Epoch is the harness clock's starting reading.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs one scenario against one store with a manual clock and
// sequential ids.
type Harness struct {
	es    *eventstore.Store
	clock *testutil.ManualClock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The clock starts at
// Epoch and ids are "<name>-1", "<name>-2", ..., so hashes are reproducible.
//
// Steps that fail unexpectedly, or succeed when an error was declared, are
// recorded on the result; Run only returns an error when the store cannot
// be set up.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	registry, err := aggregate.FromNames(scenario.Handlers)
	if err != nil {
		return nil, err
	}
	schemas, err := schema.Compile(scenario.Schemas)
	if err != nil {
		return nil, err
	}

	domain, service := scenario.Domain, scenario.Service
	if domain == "" {
		domain = DefaultDomain
	}
	if service == "" {
		service = DefaultService
	}

	clock := testutil.NewManualClock(Epoch)
	es, err := eventstore.New(st, registry, eventstore.Options{
		Domain:  domain,
		Service: service,
		Network: "local",
		Public:  scenario.Public,
		Schemas: schemas,
		NewID:   testutil.NewSequenceIDs(scenario.Name).Next,
		Clock:   clock,
		Logger:  glog.Nop(),
	})
	if err != nil {
		return nil, err
	}

	h := &Harness{es: es, clock: clock}
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, es, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	switch step.Op {
	case OpAdvance:
		d, err := time.ParseDuration(step.By)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil

	case OpAppend:
		payload, err := toObject(step.Payload)
		if err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		h.clock.Advance(time.Millisecond)
		events, err := h.es.Append(ctx, []ir.ProposedEvent{{
			Root:    step.Root,
			Number:  step.Number,
			Headers: ir.Headers{Action: step.Action},
			Payload: payload,
		}})
		ev := TraceEvent{Step: index, Op: OpAppend, Root: step.Root, Action: step.Action}
		if err != nil {
			ev.Error = textCode(err)
			result.add(ev, "")
			checkOutcome(result, index, step.Error, err)
			return nil
		}
		ev.Number = events[0].Number
		ev.ID = events[0].ID
		result.add(ev, events[0].Hash)
		checkOutcome(result, index, step.Error, nil)
		return nil

	case OpCreateBlock:
		h.clock.Advance(time.Second)
		blk, err := h.es.CreateBlock(ctx)
		ev := TraceEvent{Step: index, Op: OpCreateBlock}
		if err != nil {
			ev.Error = textCode(err)
			result.add(ev, "")
			checkOutcome(result, index, step.Error, err)
			return nil
		}
		ev.Number = blk.Number
		ev.Count = blk.Count
		result.add(ev, blk.Hash)
		checkOutcome(result, index, step.Error, nil)
		return nil
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func checkOutcome(result *Result, index int, want string, err error) {
	switch {
	case want == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", index, err))
	case want != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d]: expected error %s, step succeeded", index, want))
	case want != "" && textCode(err) != want:
		result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %s: %v", index, want, textCode(err), err))
	}
}

func textCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

func toObject(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return ir.IRObject{}, nil
	}
	v, err := ir.FromNative(m)
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}
