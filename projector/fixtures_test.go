package projector

import (
	"context"
	"errors"
	"sync"
)

const (
	kindOrder     Kind = "sale.order"
	kindOrderLine Kind = "sale.order.line"
	kindPartner   Kind = "res.partner"
	kindProduct   Kind = "product.template"
	kindCategory  Kind = "product.category"
	kindFormula   Kind = "product.formula"
)

func testRegistry() Registry {
	return NewRegistry(
		NewSchema(kindOrder,
			Field{Name: "name", Type: Scalar},
			Field{Name: "partner_id", Type: Reference, Target: kindPartner},
			Field{Name: "partner_invoice_id", Type: Reference, Target: kindPartner},
			Field{Name: "order_line", Type: ReferenceSet, Target: kindOrderLine},
			Field{Name: "payment_proof", Type: Binary},
		),
		NewSchema(kindOrderLine,
			Field{Name: "name", Type: Scalar},
			Field{Name: "order_id", Type: Reference, Target: kindOrder},
			Field{Name: "product_id", Type: Reference, Target: kindProduct},
			Field{Name: "price_unit", Type: Scalar},
		),
		NewSchema(kindPartner,
			Field{Name: "name", Type: Scalar},
			Field{Name: "email", Type: Scalar},
			Field{Name: "parent_id", Type: Reference, Target: kindPartner},
			Field{Name: "child_ids", Type: ReferenceSet, Target: kindPartner},
		),
		NewSchema(kindProduct,
			Field{Name: "name", Type: Scalar},
			Field{Name: "list_price", Type: Scalar},
			Field{Name: "categ_id", Type: Reference, Target: kindCategory},
			Field{Name: "image_1920", Type: Binary},
		),
		NewSchema(kindCategory,
			Field{Name: "name", Type: Scalar},
			Field{Name: "complete_name", Type: Scalar},
			Field{Name: "formula_id", Type: Reference, Target: kindFormula},
		),
		NewSchema(kindFormula,
			Field{Name: "name", Type: Scalar},
			Field{Name: "expression", Type: Scalar},
		),
	)
}

// mapLookup serves flat rows through RecordFromFlat, the way a bulk read
// against the backing store would.
type mapLookup struct {
	registry Registry
	rows     map[Kind]map[int64]map[string]any
	err      error

	mu    sync.Mutex
	calls int
}

func newMapLookup(reg Registry) *mapLookup {
	return &mapLookup{registry: reg, rows: map[Kind]map[int64]map[string]any{}}
}

func (m *mapLookup) put(kind Kind, row map[string]any) {
	if m.rows[kind] == nil {
		m.rows[kind] = map[int64]map[string]any{}
	}
	m.rows[kind][row["id"].(int64)] = row
}

func (m *mapLookup) Lookup(_ context.Context, kind Kind, ids []int64) ([]*Record, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	schema, ok := m.registry.Schema(kind)
	if !ok {
		return nil, errors.New("no schema for " + string(kind))
	}
	var out []*Record
	for _, id := range ids {
		row, ok := m.rows[kind][id]
		if !ok {
			continue
		}
		rec, err := RecordFromFlat(schema, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mapLookup) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// acme is partner#7 from the order example.
func acme() *Record {
	return &Record{
		Kind:        kindPartner,
		ID:          7,
		DisplayName: "Acme",
		Values: map[string]any{
			"name":      "Acme",
			"email":     "a@x.com",
			"parent_id": nil,
			"child_ids": []*Record{},
		},
	}
}
