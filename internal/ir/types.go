package ir

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the ISO-8601 form used for every timestamp that enters a
// hash: UTC, millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(TimeLayout)
}

// ParseTime parses a TimeLayout (or any RFC 3339) timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// EventID is the globally unique id of the event numbered n for root.
func EventID(root string, number int64) string {
	return fmt.Sprintf("%s_%d", root, number)
}

// Topic builds the routing key for an action in a domain/service.
func Topic(action, domain, service string) string {
	return strings.Join([]string{action, domain, service}, ".")
}

// Claims are the token claims of the principal that issued an event.
type Claims struct {
	Iss string `json:"iss,omitempty"`
	Aud string `json:"aud,omitempty"`
	Sub string `json:"sub,omitempty"`
	Exp string `json:"exp,omitempty"`
	Iat string `json:"iat,omitempty"`
	Jti string `json:"jti,omitempty"`
}

func (c *Claims) toIR() IRObject {
	obj := IRObject{}
	put := func(k, v string) {
		if v != "" {
			obj[k] = IRString(v)
		}
	}
	put("iss", c.Iss)
	put("aud", c.Aud)
	put("sub", c.Sub)
	put("exp", c.Exp)
	put("iat", c.Iat)
	put("jti", c.Jti)
	return obj
}

// Hop is one entry of the distributed-tracing path an event travelled.
type Hop struct {
	Name      string    `json:"name,omitempty"`
	ID        string    `json:"id,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Service   string    `json:"service,omitempty"`
	Network   string    `json:"network"`
	Host      string    `json:"host"`
	Procedure string    `json:"procedure"`
	Hash      string    `json:"hash"`
	Issued    time.Time `json:"issued,omitzero"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

func (h Hop) toIR() IRObject {
	obj := IRObject{
		"network":   IRString(h.Network),
		"host":      IRString(h.Host),
		"procedure": IRString(h.Procedure),
		"hash":      IRString(h.Hash),
	}
	for k, v := range map[string]string{"name": h.Name, "id": h.ID, "domain": h.Domain, "service": h.Service} {
		if v != "" {
			obj[k] = IRString(v)
		}
	}
	if !h.Issued.IsZero() {
		obj["issued"] = IRString(FormatTime(h.Issued))
	}
	if !h.Timestamp.IsZero() {
		obj["timestamp"] = IRString(FormatTime(h.Timestamp))
	}
	return obj
}

// Headers carry routing and provenance metadata for an event.
type Headers struct {
	Topic       string    `json:"topic"`
	Action      string    `json:"action"`
	Domain      string    `json:"domain"`
	Service     string    `json:"service"`
	Version     int64     `json:"version"`
	Idempotency string    `json:"idempotency"`
	Trace       string    `json:"trace,omitempty"`
	Context     IRObject  `json:"context,omitempty"`
	Claims      *Claims   `json:"claims,omitempty"`
	Created     time.Time `json:"created"`
	Path        []Hop     `json:"path,omitempty"`
}

// IR returns the headers as an IRObject, omitting empty optional fields.
func (h Headers) IR() IRObject {
	obj := IRObject{
		"topic":       IRString(h.Topic),
		"action":      IRString(h.Action),
		"domain":      IRString(h.Domain),
		"service":     IRString(h.Service),
		"version":     IRInt(h.Version),
		"idempotency": IRString(h.Idempotency),
		"created":     IRString(FormatTime(h.Created)),
	}
	if h.Trace != "" {
		obj["trace"] = IRString(h.Trace)
	}
	if len(h.Context) > 0 {
		obj["context"] = h.Context
	}
	if h.Claims != nil {
		obj["claims"] = h.Claims.toIR()
	}
	path := make(IRArray, len(h.Path))
	for i, hop := range h.Path {
		path[i] = hop.toIR()
	}
	obj["path"] = path
	return obj
}

// ProposedEvent is an event submitted for append. Number is set only on the
// idempotent retry path, where the caller asserts the numbers it expects.
type ProposedEvent struct {
	Root    string   `json:"root"`
	Number  *int64   `json:"number,omitempty"`
	Headers Headers  `json:"headers"`
	Payload IRObject `json:"payload"`
}

// Event is an immutable, numbered record of one state transition of a root.
type Event struct {
	ID      string    `json:"id"`
	Root    string    `json:"root"`
	Number  int64     `json:"number"`
	Saved   time.Time `json:"saved"`
	Payload IRObject  `json:"payload"`
	Headers Headers   `json:"headers"`
	Hash    string    `json:"hash"`
	Proofs  []string  `json:"proofs"`
}

// Record is the normalized content the event hash is computed over.
func (e Event) Record() IRObject {
	payload := e.Payload
	if payload == nil {
		payload = IRObject{}
	}
	return IRObject{
		"id":      IRString(e.ID),
		"root":    IRString(e.Root),
		"number":  IRInt(e.Number),
		"saved":   IRString(FormatTime(e.Saved)),
		"payload": payload,
		"headers": e.Headers.IR(),
	}
}

// CanonicalString is the public form of the event committed into blocks.
// Proofs are excluded; they are appended after commitment.
func (e Event) CanonicalString() (string, error) {
	return CanonicalString(IRObject{
		"data": e.Record(),
		"hash": IRString(e.Hash),
	})
}

// Snapshot is the folded state of a root up to LastEventNumber. Snapshots
// written by the block builder also carry the Merkle digest of the events
// they cover.
type Snapshot struct {
	Root            string    `json:"root"`
	State           IRObject  `json:"state"`
	LastEventNumber int64     `json:"lastEventNumber"`
	Created         time.Time `json:"created"`
	Hash            string    `json:"hash,omitempty"`
	MerkleRoot      string    `json:"merkleRoot,omitempty"`
	Previous        string    `json:"previous,omitempty"`
	Data            []string  `json:"data,omitempty"`
	Count           int       `json:"count"`
	Public          bool      `json:"public"`
}

// Record is the content the snapshot hash is computed over.
func (s Snapshot) Record() IRObject {
	state := s.State
	if state == nil {
		state = IRObject{}
	}
	data := make(IRArray, len(s.Data))
	for i, d := range s.Data {
		data[i] = IRString(d)
	}
	obj := IRObject{
		"hash":            IRString(s.MerkleRoot),
		"data":            data,
		"count":           IRInt(s.Count),
		"public":          IRBool(s.Public),
		"lastEventNumber": IRInt(s.LastEventNumber),
		"root":            IRString(s.Root),
		"state":           state,
	}
	if s.Previous != "" {
		obj["previous"] = IRString(s.Previous)
	}
	return obj
}

// CanonicalString is the form of the snapshot committed into a block.
func (s Snapshot) CanonicalString() (string, error) {
	return CanonicalString(IRObject{
		"data": s.Record(),
		"hash": IRString(s.Hash),
	})
}

// GenesisPrevious is the Previous value of block 0.
const GenesisPrevious = "~"

// Block is a periodic commitment over every root modified before Boundary.
type Block struct {
	Hash     string    `json:"hash"`
	Previous string    `json:"previous"`
	Data     []string  `json:"data"`
	Count    int       `json:"count"`
	Number   int64     `json:"number"`
	Boundary time.Time `json:"boundary"`
	Network  string    `json:"network"`
	Service  string    `json:"service"`
	Domain   string    `json:"domain"`
}

// IsGenesis reports whether b is the first block of its chain.
func (b Block) IsGenesis() bool {
	return b.Number == 0 && b.Previous == GenesisPrevious
}

// Proof tracks the external anchoring status of a block or snapshot hash.
type Proof struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Hash     string         `json:"hash"`
	Created  time.Time      `json:"created"`
	Updated  time.Time      `json:"updated"`
	Metadata map[string]any `json:"metadata"`
}

// Aggregate is the result of folding a root's events.
type Aggregate struct {
	Root            string   `json:"root"`
	State           IRObject `json:"state"`
	LastEventNumber int64    `json:"lastEventNumber"`

	// Events are the events folded on top of the snapshot, in order.
	Events []Event `json:"-"`
	// SnapshotHash is the hash of the snapshot the fold started from.
	SnapshotHash string `json:"-"`
}
