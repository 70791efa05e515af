// Package query filters stored events.
//
// A Filter is lowered to a Predicate tree, then compiled to a parameterized
// SQLite clause over the events table. Values are never interpolated into
// SQL; column names come from a fixed allow-list. Every compiled clause
// ends in ORDER BY root ASC, number ASC so results are deterministic.
//
// Conditions that SQL cannot express are written as a CEL expression
// (Filter.Expr) and evaluated per event after the SQL pass.
package query
