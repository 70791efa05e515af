// Package harness runs YAML conformance scenarios against a rootstore
// event store.
//
// A scenario names the handlers and schemas of a store, lists append,
// create_block and advance steps, and asserts on the outcome:
//
//	name: deposits
//	description: deposits merge into the account state
//	handlers:
//	  deposit: merge
//	steps:
//	  - op: append
//	    root: acct-1
//	    action: deposit
//	    payload: {amount: 5}
//	  - op: create_block
//	assertions:
//	  - type: aggregate
//	    root: acct-1
//	    state: {amount: 5}
//	  - type: chain_valid
//	    count: 1
//
// Each run uses a fresh in-memory database, a manual clock starting at
// Epoch and ids derived from the scenario name, so two runs of the same
// scenario produce the same event and block hashes. RunWithGolden also
// compares the step trace against a golden file.
package harness
