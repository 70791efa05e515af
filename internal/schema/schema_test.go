package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootstore/internal/ir"
)

const depositSchema = `close({
	amount:   int & >0
	currency: "USD" | "EUR"
	memo?:    string
})`

func TestValidate(t *testing.T) {
	set, err := Compile(map[string]string{"deposit": depositSchema})
	require.NoError(t, err)

	tests := []struct {
		name    string
		action  string
		payload ir.IRObject
		wantErr bool
	}{
		{"valid", "deposit", ir.IRObject{"amount": ir.IRInt(5), "currency": ir.IRString("USD")}, false},
		{"optional field", "deposit", ir.IRObject{"amount": ir.IRInt(5), "currency": ir.IRString("EUR"), "memo": ir.IRString("m")}, false},
		{"missing field", "deposit", ir.IRObject{"amount": ir.IRInt(5)}, true},
		{"bad bound", "deposit", ir.IRObject{"amount": ir.IRInt(0), "currency": ir.IRString("USD")}, true},
		{"wrong type", "deposit", ir.IRObject{"amount": ir.IRString("5"), "currency": ir.IRString("USD")}, true},
		{"closed struct", "deposit", ir.IRObject{"amount": ir.IRInt(5), "currency": ir.IRString("USD"), "extra": ir.IRBool(true)}, true},
		{"no schema", "withdraw", ir.IRObject{"anything": ir.IRBool(true)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := set.Validate(tt.action, tt.payload)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.action, verr.Action)
		})
	}
}

func TestCompileRejectsBadSource(t *testing.T) {
	_, err := Compile(map[string]string{"deposit": `{ amount: int & }`})
	require.Error(t, err)

	_, err = Compile(map[string]string{"": `{}`})
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deposit.cue"), []byte(depositSchema), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	set, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"deposit"}, set.Actions())
}

func TestNilAndEmptySetAcceptEverything(t *testing.T) {
	var set *Set
	assert.NoError(t, set.Validate("deposit", ir.IRObject{}))
	assert.NoError(t, Empty().Validate("deposit", nil))
}
