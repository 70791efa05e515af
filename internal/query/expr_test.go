package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootstore/internal/ir"
)

func exprEvent(number int64, action string, payload ir.IRObject) ir.Event {
	return ir.Event{
		ID:      ir.EventID("r", number),
		Root:    "r",
		Number:  number,
		Payload: payload,
		Headers: ir.Headers{Action: action, Topic: ir.Topic(action, "d", "s")},
	}
}

func TestExprMatch(t *testing.T) {
	e := exprEvent(3, "deposit", ir.IRObject{"amount": ir.IRInt(50), "tags": ir.IRArray{ir.IRString("vip")}})

	tests := []struct {
		expr string
		want bool
	}{
		{`action == "deposit"`, true},
		{`number >= 3 && payload.amount > 10`, true},
		{`payload.amount > 100`, false},
		{`"vip" in payload.tags`, true},
		{`headers.topic.endsWith(".d.s")`, true},
		{`root == "other"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			x, err := NewExpr(tt.expr)
			require.NoError(t, err)
			got, err := x.Match(e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewExprErrors(t *testing.T) {
	for _, bad := range []string{`action ==`, `unknown_var == 1`, `number + 1`} {
		_, err := NewExpr(bad)
		assert.Error(t, err, bad)
	}
}

func TestNilExprMatchesAll(t *testing.T) {
	x, err := NewExpr("   ")
	require.NoError(t, err)
	assert.Nil(t, x)

	ok, err := x.Match(exprEvent(0, "a", nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExprApply(t *testing.T) {
	x, err := NewExpr(`payload.n % 2 == 0`)
	require.NoError(t, err)

	var events []ir.Event
	for i := int64(0); i < 5; i++ {
		events = append(events, exprEvent(i, "a", ir.IRObject{"n": ir.IRInt(i)}))
	}
	kept, err := x.Apply(events)
	require.NoError(t, err)
	require.Len(t, kept, 3)
	assert.Equal(t, []int64{0, 2, 4}, []int64{kept[0].Number, kept[1].Number, kept[2].Number})
}

func TestExprMissingKeyIsError(t *testing.T) {
	x, err := NewExpr(`payload.missing == 1`)
	require.NoError(t, err)

	_, err = x.Match(exprEvent(0, "a", ir.IRObject{}))
	require.Error(t, err)
}
