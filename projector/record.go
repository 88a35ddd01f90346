package projector

import (
	"context"
	"fmt"
	"math"
)

// Record is a read-only snapshot of one stored object.
//
// Values holds field values keyed by field name. Relation fields may hold
// either materialized records (*Record for a reference, []*Record for a
// reference set) or compact forms (Ref, RefSet) that the projector resolves
// through its Lookup when it needs to expand them. A nil value or false means
// the relation is empty.
type Record struct {
	Kind        Kind
	ID          int64
	DisplayName string
	Values      map[string]any
}

// Ref is a single reference in the compact [id, display_name] form that
// bulk reads return.
type Ref struct {
	ID   int64
	Name string
}

// RefSet is a reference set in the compact id-list form that bulk reads return.
type RefSet []int64

// Lookup fetches full records of one kind by id. Ids that no longer exist are
// left out of the result; order of the result does not matter.
type Lookup interface {
	Lookup(ctx context.Context, kind Kind, ids []int64) ([]*Record, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, kind Kind, ids []int64) ([]*Record, error)

// Lookup calls f.
func (f LookupFunc) Lookup(ctx context.Context, kind Kind, ids []int64) ([]*Record, error) {
	return f(ctx, kind, ids)
}

// RecordFromFlat converts a row from a bulk read into a Record. Relation
// fields declared on schema become Ref or RefSet values; everything else is
// kept as is. The display name is taken from "display_name", falling back to
// "name".
func RecordFromFlat(schema *Schema, flat map[string]any) (*Record, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrUnknownKind)
	}
	var id int64
	if raw, ok := flat["id"]; ok {
		parsed, err := toID(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.id: %v", ErrFieldType, schema.Kind, err)
		}
		id = parsed
	}
	rec := &Record{
		Kind:        schema.Kind,
		ID:          id,
		DisplayName: displayName(flat),
		Values:      make(map[string]any, len(flat)),
	}
	for name, value := range flat {
		f, ok := schema.Field(name)
		if !ok || !f.Type.IsRelation() {
			rec.Values[name] = value
			continue
		}
		var (
			converted any
			err       error
		)
		if f.Type == Reference {
			converted, err = compactRef(value)
		} else {
			converted, err = compactRefSet(value)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrFieldType, schema.Kind, name, err)
		}
		rec.Values[name] = converted
	}
	return rec, nil
}

func displayName(flat map[string]any) string {
	if s, ok := flat["display_name"].(string); ok {
		return s
	}
	if s, ok := flat["name"].(string); ok {
		return s
	}
	return ""
}

// compactRef accepts the shapes a many2one takes in a bulk read: false or nil
// when empty, an [id, name] pair, or a bare id. Already materialized records
// pass through.
func compactRef(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return nil, fmt.Errorf("unexpected true")
		}
		return nil, nil
	case *Record, Ref:
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		id, err := toID(v[0])
		if err != nil {
			return nil, err
		}
		ref := Ref{ID: id}
		if len(v) > 1 {
			if name, ok := v[1].(string); ok {
				ref.Name = name
			}
		}
		return ref, nil
	case map[string]any:
		id, err := toID(v["id"])
		if err != nil {
			return nil, err
		}
		return Ref{ID: id, Name: displayName(v)}, nil
	default:
		id, err := toID(v)
		if err != nil {
			return nil, err
		}
		return Ref{ID: id}, nil
	}
}

func compactRefSet(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return RefSet{}, nil
	case bool:
		if v {
			return nil, fmt.Errorf("unexpected true")
		}
		return RefSet{}, nil
	case []*Record, RefSet:
		return v, nil
	case []int64:
		return RefSet(v), nil
	case []any:
		ids := make(RefSet, 0, len(v))
		for _, item := range v {
			id, err := toID(item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unexpected %T", value)
	}
}

// toID normalizes the integer shapes produced by XML-RPC and JSON decoding.
func toID(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integer id %v", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected id %T", v)
	}
}
