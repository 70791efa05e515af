package harness

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Step   int    `json:"step"`
	Op     string `json:"op"`
	Root   string `json:"root,omitempty"`
	Action string `json:"action,omitempty"`
	// Number is the event number for appends and the block number for blocks.
	Number int64  `json:"number"`
	ID     string `json:"id,omitempty"`
	// Count is the number of roots a block committed.
	Count int `json:"count,omitempty"`
	// Error is the text code of a failed step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as declared and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one entry per append or block step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Hashes are the event and block hashes in trace order. Identical
	// scenarios produce identical hashes.
	Hashes []string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent, hash string) {
	r.Trace = append(r.Trace, ev)
	if hash != "" {
		r.Hashes = append(r.Hashes, hash)
	}
}
