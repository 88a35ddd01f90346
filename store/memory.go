package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ilcreatore32/odoograph/projector"
)

// Memory is an in-process record store. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[projector.Kind]map[int64]*projector.Record
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{records: map[projector.Kind]map[int64]*projector.Record{}}
}

// Put stores recs, replacing records with the same kind and id.
func (m *Memory) Put(recs ...*projector.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if m.records[rec.Kind] == nil {
			m.records[rec.Kind] = map[int64]*projector.Record{}
		}
		m.records[rec.Kind][rec.ID] = rec
	}
}

// Get returns one record.
func (m *Memory) Get(kind projector.Kind, id int64) (*projector.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[kind][id]
	return rec, ok
}

// Delete removes a record. References to it become stale.
func (m *Memory) Delete(kind projector.Kind, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[kind], id)
}

// IDs lists the stored ids of kind in ascending order.
func (m *Memory) IDs(kind projector.Kind) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.records[kind]))
	for id := range m.records[kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lookup implements projector.Lookup. Unknown ids are skipped.
func (m *Memory) Lookup(ctx context.Context, kind projector.Kind, ids []int64) ([]*projector.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*projector.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.records[kind][id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// LoadFixture reads a YAML document mapping each kind to a list of flat rows
// shaped like a search_read answer:
//
//	sale.order:
//	  - id: 1
//	    name: SO001
//	    partner_id: [7, Acme]
//	    order_line: [10, 11]
//
// Every kind must be declared in registry.
func LoadFixture(r io.Reader, registry projector.Registry) (*Memory, error) {
	var doc map[projector.Kind][]map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("store: decode fixture: %w", err)
	}

	m := NewMemory()
	for kind, rows := range doc {
		schema, ok := registry.Schema(kind)
		if !ok {
			return nil, fmt.Errorf("%w: fixture kind %s", projector.ErrUnknownKind, kind)
		}
		for i, row := range rows {
			if _, ok := row["id"]; !ok {
				return nil, fmt.Errorf("store: fixture %s row %d has no id", kind, i)
			}
			rec, err := projector.RecordFromFlat(schema, row)
			if err != nil {
				return nil, fmt.Errorf("store: fixture %s row %d: %w", kind, i, err)
			}
			m.Put(rec)
		}
	}
	return m, nil
}
