package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/rootstore/internal/eventstore"
	"github.com/roach88/rootstore/internal/ir"
)

// VerifyResult is the outcome of walking the block chain.
type VerifyResult struct {
	Blocks int  `json:"blocks"`
	Valid  bool `json:"valid"`
}

// NewBlockCommand creates the block command group.
func NewBlockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Build, verify and inspect proof blocks",
	}
	cmd.AddCommand(newBlockCreateCommand(rootOpts))
	cmd.AddCommand(newBlockVerifyCommand(rootOpts))
	cmd.AddCommand(newBlockLatestCommand(rootOpts))
	cmd.AddCommand(newBlockShowCommand(rootOpts))
	return cmd
}

func newBlockCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Commit every root changed since the previous block",
		Long: `Create the next block in the chain. The first run writes the genesis block;
every later run snapshots the roots with events saved since the previous
block boundary and commits to them.

Run it on a schedule. A failure on any root aborts the run and writes nothing.

Exit codes:
  0 - Block created
  2 - Command error (config, database, failed root, etc.)

Examples:
  rootstore block create --config rootstore.yaml
  rootstore block create --config rootstore.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			sess, err := openSession(opts, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			blk, err := sess.es.CreateBlock(cmd.Context())
			if err != nil {
				return out.Fail(ExitCommandError, "failed to create block", err)
			}
			return out.Success(blk, func(w io.Writer) {
				if blk.IsGenesis() {
					fmt.Fprintf(w, "Genesis block created: %s\n", blk.Hash)
					return
				}
				fmt.Fprintf(w, "Block %d created: %s (%d root(s))\n", blk.Number, blk.Hash, blk.Count)
			})
		},
	}
}

func newBlockVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every block's hash and link to its predecessor",
		Long: `Walk the block chain from genesis, recomputing each block's hash from its
data and checking number, previous hash and boundary against the block before.

Exit codes:
  0 - Chain intact (an empty chain is intact)
  1 - Chain broken
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			sess, err := openSession(opts, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			n, err := sess.es.VerifyChain(cmd.Context())
			switch {
			case eventstore.IsChainBroken(err):
				out.VerboseLog("%d block(s) verified before the break", n)
				return out.Fail(ExitFailure, "block chain verification failed", err)
			case err != nil:
				return out.Fail(ExitCommandError, "failed to verify block chain", err)
			}
			return out.Success(VerifyResult{Blocks: n, Valid: true}, func(w io.Writer) {
				fmt.Fprintf(w, "\u2713 Chain verified: %d block(s)\n", n)
			})
		},
	}
}

func newBlockLatestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "latest",
		Short:         "Show the newest block",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			sess, err := openSession(opts, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			blk, err := sess.es.LatestBlock(cmd.Context())
			if err != nil {
				return out.Fail(ExitCommandError, "failed to read latest block", err)
			}
			return out.Success(blk, func(w io.Writer) { writeBlock(w, blk, opts.Verbose) })
		},
	}
}

func newBlockShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <number>",
		Short:         "Show a block by number",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, opts)
			number, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return out.Fail(ExitCommandError, "invalid block number", err)
			}
			sess, err := openSession(opts, out)
			if err != nil {
				return err
			}
			defer sess.Close()

			blk, err := sess.es.Block(cmd.Context(), number)
			if err != nil {
				return out.Fail(ExitCommandError, "failed to read block", err)
			}
			return out.Success(blk, func(w io.Writer) { writeBlock(w, blk, opts.Verbose) })
		},
	}
}

func writeBlock(w io.Writer, blk *ir.Block, verbose bool) {
	fmt.Fprintf(w, "Block %d\n", blk.Number)
	fmt.Fprintf(w, "  Hash:     %s\n", blk.Hash)
	fmt.Fprintf(w, "  Previous: %s\n", blk.Previous)
	fmt.Fprintf(w, "  Boundary: %s\n", ir.FormatTime(blk.Boundary))
	fmt.Fprintf(w, "  Count:    %d\n", blk.Count)
	if verbose {
		for _, d := range blk.Data {
			fmt.Fprintf(w, "  - %s\n", d)
		}
	}
}
