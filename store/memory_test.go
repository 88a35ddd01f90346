package store

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilcreatore32/odoograph/projector"
)

const salesFixture = `
sale.order:
  - id: 1
    name: SO001
    partner_id: [7, Acme]
    order_line: [10, 11]
sale.order.line:
  - id: 10
    name: Widget
    order_id: [1, SO001]
    price_unit: 50
  - id: 11
    name: Gadget
    order_id: [1, SO001]
    price_unit: 100
res.partner:
  - id: 7
    name: Acme
    email: info@acme.test
`

func TestLoadFixture(t *testing.T) {
	mem, err := LoadFixture(strings.NewReader(salesFixture), salesRegistry())
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 11}, mem.IDs(kindOrderLine))

	order, ok := mem.Get(kindOrder, 1)
	require.True(t, ok)
	assert.Equal(t, "SO001", order.DisplayName)
	assert.Equal(t, projector.Ref{ID: 7, Name: "Acme"}, order.Values["partner_id"])
	assert.Equal(t, projector.RefSet{10, 11}, order.Values["order_line"])
}

func TestLoadFixtureRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"undeclared kind", "stock.move:\n  - id: 1\n", "stock.move"},
		{"row without id", "res.partner:\n  - name: Nobody\n", "has no id"},
		{"bad reference", "sale.order:\n  - id: 1\n    partner_id: acme\n", "partner_id"},
		{"not yaml", "sale.order: [", "decode fixture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixture(strings.NewReader(tt.doc), salesRegistry())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFixtureEmpty(t *testing.T) {
	mem, err := LoadFixture(strings.NewReader(""), salesRegistry())
	require.NoError(t, err)
	assert.Empty(t, mem.IDs(kindOrder))
}

func TestMemoryLookup(t *testing.T) {
	mem := NewMemory()
	mem.Put(
		&projector.Record{Kind: kindPartner, ID: 1, DisplayName: "Acme"},
		&projector.Record{Kind: kindPartner, ID: 2, DisplayName: "Globex"},
		nil,
	)
	mem.Delete(kindPartner, 2)

	recs, err := mem.Lookup(context.Background(), kindPartner, []int64{2, 1, 3})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Acme", recs[0].DisplayName)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mem.Lookup(ctx, kindPartner, []int64{1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestProjectFixtureRecord(t *testing.T) {
	reg := salesRegistry()
	mem, err := LoadFixture(strings.NewReader(salesFixture), reg)
	require.NoError(t, err)
	p := projector.New(reg, projector.WithLookup(mem))

	order, _ := mem.Get(kindOrder, 1)
	got, err := p.ProjectRecord(context.Background(), order, 2,
		projector.ParseProjection([]string{"order_line.name", "order_line.order_id.name"}))
	require.NoError(t, err)

	want := map[string]any{
		"id":           int64(1),
		"name":         "SO001",
		"amount_total": nil,
		"partner_id": map[string]any{
			"id": int64(7), "name": "Acme", "email": "info@acme.test",
		},
		"order_line": []any{
			map[string]any{
				"id": int64(10), "name": "Widget",
				"order_id": map[string]any{"id": int64(1), "name": "SO001"},
			},
			map[string]any{
				"id": int64(11), "name": "Gadget",
				"order_id": map[string]any{"id": int64(1), "name": "SO001"},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}
}
