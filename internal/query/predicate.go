package query

import "github.com/roach88/rootstore/internal/ir"

// Predicate is a filter condition over the events table.
//
// This is a sealed interface - only types in this package implement it,
// so Compile can switch over every case.
type Predicate interface {
	predicateNode()
}

// Equals matches rows where column Field equals Value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// PayloadEquals matches rows whose payload value at Path equals Value.
// Path uses dots for nesting: "customer.id".
type PayloadEquals struct {
	Path  string
	Value ir.IRValue
}

func (PayloadEquals) predicateNode() {}

// Range matches rows where integer column Field is in [From, Before).
// A nil bound leaves that side open.
type Range struct {
	Field  string
	From   *int64
	Before *int64
}

func (Range) predicateNode() {}

// And matches rows that satisfy every predicate. An empty And matches all.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
