package ir

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-7), "-7"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool", IRBool(false), "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"go string", "root-1", `"root-1"`},
		{"go int", 3, "3"},
		{"string slice", []string{"b", "a"}, `["b","a"]`},
		{"native map", map[string]any{"b": int64(1), "a": "x"}, `{"a":"x","b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonicalNestedKeyOrder(t *testing.T) {
	obj := IRObject{
		"payload": IRObject{"z": IRInt(1), "a": IRInt(2)},
		"id":      IRString("r_0"),
	}

	out, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"r_0","payload":{"a":2,"z":1}}`, string(out))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	out, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(out))
}

func TestMarshalCanonicalRejectsFloatsAndNulls(t *testing.T) {
	for name, input := range map[string]any{
		"float64":       3.14,
		"float32":       float32(1.5),
		"nil":           nil,
		"ir null":       IRNull{},
		"null in array": IRArray{IRInt(1), IRNull{}},
		"float in map":  map[string]any{"n": 0.5},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := MarshalCanonical(input)
			require.Error(t, err)
		})
	}
}

func TestMarshalCanonicalStringEscapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"newline", "a\nb", `"a\nb"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"control", "a\x01b", `"a\u0001b"`},
		{"html untouched", "<a & b>", `"<a & b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	composed, err := MarshalCanonical(IRObject{"caf\u00e9": IRString("caf\u00e9")})
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(IRObject{"cafe\u0301": IRString("cafe\u0301")})
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonicalRoundTrip(t *testing.T) {
	values := []IRValue{
		IRArray{IRInt(1), IRString("two"), IRBool(true)},
		IRObject{"state": IRObject{"x": IRInt(2)}, "tags": IRArray{IRString("a")}},
	}

	for _, v := range values {
		first, err := MarshalCanonical(v)
		require.NoError(t, err)

		decoded, err := UnmarshalIRValue(first)
		require.NoError(t, err)

		second, err := MarshalCanonical(decoded)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func sampleEvent() Event {
	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return Event{
		ID:     EventID("root-1", 0),
		Root:   "root-1",
		Number: 0,
		Saved:  saved,
		Payload: IRObject{
			"x": IRInt(1),
		},
		Headers: Headers{
			Topic:       Topic("add", "ledger", "accounts"),
			Action:      "add",
			Domain:      "ledger",
			Service:     "accounts",
			Version:     0,
			Idempotency: "idem-1",
			Created:     saved,
			Path: []Hop{{
				Network:   "local",
				Host:      "test",
				Procedure: "append",
				Hash:      "abc",
			}},
		},
		Hash: "deadbeef",
	}
}

func TestEventCanonicalStringGolden(t *testing.T) {
	s, err := sampleEvent().CanonicalString()
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "event_canonical", []byte(s))
}

func TestEventCanonicalStringExcludesProofs(t *testing.T) {
	e := sampleEvent()
	before, err := e.CanonicalString()
	require.NoError(t, err)

	e.Proofs = []string{"block-hash"}
	after, err := e.CanonicalString()
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestSnapshotRecordOmitsEmptyPrevious(t *testing.T) {
	s := Snapshot{Root: "r", State: IRObject{"x": IRInt(1)}, LastEventNumber: 2, MerkleRoot: "m", Count: 3}

	rec := s.Record()
	_, ok := rec["previous"]
	assert.False(t, ok)

	s.Previous = "p"
	assert.Equal(t, IRString("p"), s.Record()["previous"])
}

func TestFormatTimeMillisecondUTC(t *testing.T) {
	ts := time.Date(2000, 1, 1, 0, 0, 0, 123456789, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "2000-01-01T05:00:00.123Z", FormatTime(ts))

	parsed, err := ParseTime("2000-01-01T05:00:00.000Z")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(time.Date(2000, 1, 1, 5, 0, 0, 0, time.UTC)))
}
