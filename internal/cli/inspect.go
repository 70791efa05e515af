package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/rootstore/internal/eventstore"
	"github.com/roach88/rootstore/internal/ir"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Payload string
	Number  int64
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <root> <action>",
		Short: "Append one event to a root",
		Long: `Append one event to a root. The payload is a JSON object of strings,
integers, booleans, arrays and objects.

With --number the event is only written if it would be that root's next
number; otherwise the store rejects it as a concurrency conflict.

Examples:
  rootstore append acct-1 deposit --payload '{"amount": 50}'
  rootstore append acct-1 deposit --payload '{"amount": 50}' --number 3`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts.RootOptions)
			payload, err := ir.ParseObject([]byte(opts.Payload))
			if err != nil {
				return out.Fail(ExitCommandError, "invalid --payload", err)
			}
			proposed := ir.ProposedEvent{
				Root:    args[0],
				Headers: ir.Headers{Action: args[1]},
				Payload: payload,
			}
			if cmd.Flags().Changed("number") {
				proposed.Number = &opts.Number
			}

			sess, err := openSession(opts.RootOptions, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			events, err := sess.es.Append(cmd.Context(), []ir.ProposedEvent{proposed})
			if err != nil {
				return out.Fail(ExitCommandError, "failed to append event", err)
			}
			return out.Success(events[0], func(w io.Writer) { writeEvent(w, events[0]) })
		},
	}

	cmd.Flags().StringVarP(&opts.Payload, "payload", "p", "{}", "event payload as a JSON object")
	cmd.Flags().Int64Var(&opts.Number, "number", 0, "expected event number for the root")

	return cmd
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "aggregate <root>",
		Short:         "Fold a root's events into its current state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			sess, err := openSession(opts, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			agg, err := sess.es.Get(cmd.Context(), args[0])
			if err != nil {
				return out.Fail(ExitCommandError, "failed to aggregate root", err)
			}
			return out.Success(agg, func(w io.Writer) {
				state, _ := json.Marshal(agg.State)
				fmt.Fprintf(w, "%s @%d %s\n", agg.Root, agg.LastEventNumber, state)
			})
		},
	}
}

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	From   int64
	Follow bool
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events <root>",
		Short: "List a root's events in order",
		Long: `List a root's events in number order starting at --from.

With --follow the command keeps running and prints events as they are
appended until interrupted. JSON output is then one event object per line.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts.RootOptions)
			sess, err := openSession(opts.RootOptions, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			if opts.Follow {
				return followEvents(cmd.Context(), sess.es, args[0], opts.From, out)
			}

			events := []ir.Event{}
			err = sess.es.Stream(cmd.Context(), eventstore.StreamOptions{
				Root: args[0],
				From: opts.From,
				Fn: func(_ context.Context, e ir.Event) error {
					events = append(events, e)
					return nil
				},
			})
			if err != nil {
				return out.Fail(ExitCommandError, "failed to read events", err)
			}
			return out.Success(events, func(w io.Writer) {
				if len(events) == 0 {
					fmt.Fprintf(w, "No events found for %s.\n", args[0])
					return
				}
				for _, e := range events {
					writeEvent(w, e)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&opts.From, "from", 0, "first event number to list")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep printing new events until interrupted")

	return cmd
}

func followEvents(ctx context.Context, es *eventstore.Store, root string, from int64, out *OutputFormatter) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	encoder := json.NewEncoder(out.Writer)
	err := es.Follow(ctx, eventstore.FollowOptions{
		Root: root,
		From: from,
		Fn: func(_ context.Context, e ir.Event) error {
			if out.Format == "json" {
				return encoder.Encode(e)
			}
			writeEvent(out.Writer, e)
			return nil
		},
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return out.Fail(ExitCommandError, "failed to follow events", err)
	}
	return nil
}

// NewCountCommand creates the count command.
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count <root>",
		Short:         "Show how many event numbers a root has reserved",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			sess, err := openSession(opts, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			n, err := sess.es.Count(cmd.Context(), args[0])
			if err != nil {
				return out.Fail(ExitCommandError, "failed to read count", err)
			}
			return out.Success(map[string]any{"root": args[0], "count": n}, func(w io.Writer) {
				fmt.Fprintln(w, n)
			})
		},
	}
}

// RootsOptions holds flags for the roots command.
type RootsOptions struct {
	*RootOptions
	Since  string
	Before string
}

// NewRootsCommand creates the roots command.
func NewRootsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RootsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "roots",
		Short: "List roots, optionally by when they last received an event",
		Long: `List every root that has reserved an event number, sorted.

--since and --before take RFC 3339 timestamps and bound the time of each
root's most recent reservation.

Examples:
  rootstore roots
  rootstore roots --since 2024-03-01T00:00:00Z --before 2024-03-02T00:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts.RootOptions)
			rs := eventstore.RootStreamOptions{}
			var err error
			if opts.Since != "" {
				if rs.UpdatedOnOrAfter, err = ir.ParseTime(opts.Since); err != nil {
					return out.Fail(ExitCommandError, "invalid --since", err)
				}
			}
			if opts.Before != "" {
				if rs.UpdatedBefore, err = ir.ParseTime(opts.Before); err != nil {
					return out.Fail(ExitCommandError, "invalid --before", err)
				}
			}

			sess, err := openSession(opts.RootOptions, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			var mu sync.Mutex
			roots := []string{}
			rs.Fn = func(_ context.Context, root string) error {
				mu.Lock()
				defer mu.Unlock()
				roots = append(roots, root)
				return nil
			}
			if err := sess.es.RootStream(cmd.Context(), rs); err != nil {
				return out.Fail(ExitCommandError, "failed to list roots", err)
			}
			slices.Sort(roots)
			return out.Success(roots, func(w io.Writer) {
				for _, r := range roots {
					fmt.Fprintln(w, r)
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "", "only roots updated at or after this time")
	cmd.Flags().StringVar(&opts.Before, "before", "", "only roots updated before this time")

	return cmd
}

// NewProofCommand creates the proof command.
func NewProofCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "proof <id>",
		Short:         "Show a proof record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			sess, err := openSession(opts, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			p, err := sess.es.Proof(cmd.Context(), args[0])
			if err != nil {
				return out.Fail(ExitCommandError, "failed to read proof", err)
			}
			return out.Success(p, func(w io.Writer) {
				meta, _ := json.Marshal(p.Metadata)
				fmt.Fprintf(w, "%s %s %s %s\n", p.ID, p.Type, p.Hash, meta)
			})
		},
	}
}

func writeEvent(w io.Writer, e ir.Event) {
	payload, _ := json.Marshal(e.Payload)
	fmt.Fprintf(w, "%s #%d %s %s %s\n", e.Root, e.Number, e.Headers.Action, ir.FormatTime(e.Saved), payload)
}
