package odoograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainToRPC(t *testing.T) {
	d := Domain{
		{"|"},
		{"name", "ilike", "acme"},
		{"ref", "=", "A-1"},
	}
	assert.Equal(t, []any{
		"|",
		[]any{"name", "ilike", "acme"},
		[]any{"ref", "=", "A-1"},
	}, d.ToRPC())
	assert.Equal(t, []any{}, Domain(nil).ToRPC())
}

func TestDomainFromRPC(t *testing.T) {
	raw := []any{"&", []any{"active", "=", true}, []any{"id", "in", []any{1.0, 2.0}}}
	d := DomainFromRPC(raw)
	assert.Equal(t, Domain{
		{"&"},
		{"active", "=", true},
		{"id", "in", []any{1.0, 2.0}},
	}, d)
	assert.Equal(t, raw, d.ToRPC())
}

func TestOptionsToRPC(t *testing.T) {
	var nilOpts *Options
	assert.Equal(t, map[string]any{}, nilOpts.ToRPC())

	o := &Options{
		Context: OdooContext{"active_test": false},
		Limit:   10,
		Order:   "id desc",
		Extra:   map[string]any{"load": ""},
	}
	assert.Equal(t, map[string]any{
		"context": map[string]any{"active_test": false},
		"limit":   10,
		"order":   "id desc",
		"load":    "",
	}, o.ToRPC())

	assert.Equal(t, map[string]any{}, (&Options{Limit: -1, Offset: 0}).ToRPC())
}

func TestFieldsToRPC(t *testing.T) {
	assert.Equal(t, []string{}, Fields(nil).ToRPC())
	assert.Equal(t, []string{"name"}, Fields{"name"}.ToRPC())
}
