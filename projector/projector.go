// Package projector turns record graphs into JSON-safe nested values.
//
// A Projector expands relation fields up to a caller-chosen depth, applies
// per-relation field projections and stops on reference cycles. Related
// records in compact form (Ref, RefSet) are fetched through a Lookup, which
// is the only dependency on a backing store. Projector holds no mutable
// state, so one instance serves concurrent requests.
package projector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Projector projects records of the kinds declared in its Registry.
type Projector struct {
	registry Registry
	lookup   Lookup
	maxDepth int
	logger   *zap.Logger
}

// Option configures a Projector.
type Option func(*Projector)

// WithLookup sets the capability used to resolve compact references.
func WithLookup(l Lookup) Option {
	return func(p *Projector) {
		p.lookup = l
	}
}

// WithMaxDepth caps the depth any call may request. Zero means no cap.
func WithMaxDepth(n int) Option {
	return func(p *Projector) {
		p.maxDepth = n
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

// New returns a Projector over registry.
func New(registry Registry, opts ...Option) *Projector {
	p := &Projector{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = Registry{}
	}
	return p
}

// Registry returns the schema registry the projector was built with.
func (p *Projector) Registry() Registry {
	return p.registry
}

// recordKey identifies a record across kinds for cycle detection.
type recordKey struct {
	kind Kind
	id   int64
}

// visitedSet holds the records expanded on the current path from the root.
// It is never mutated once handed to a child: each branch gets its own copy.
type visitedSet map[recordKey]struct{}

func (v visitedSet) with(key recordKey) visitedSet {
	branch := make(visitedSet, len(v)+1)
	for k := range v {
		branch[k] = struct{}{}
	}
	branch[key] = struct{}{}
	return branch
}

func shortForm(id int64, name string) map[string]any {
	return map[string]any{"id": id, "name": name}
}

func (p *Projector) clampDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	if p.maxDepth > 0 && depth > p.maxDepth {
		return p.maxDepth
	}
	return depth
}

// ProjectRecord projects rec, expanding relations up to depth hops. Keys of
// projection name relation fields of rec; see Projection. A nil rec yields nil.
func (p *Projector) ProjectRecord(ctx context.Context, rec *Record, depth int, projection Projection) (map[string]any, error) {
	if rec == nil {
		return nil, nil
	}
	depth = p.clampDepth(depth)
	p.logger.Debug("Projecting record",
		zap.String("kind", string(rec.Kind)),
		zap.Int64("id", rec.ID),
		zap.Int("depth", depth),
		zap.String("op", "ProjectRecord"),
	)
	return p.project(ctx, rec, depth, nil, projection, visitedSet{})
}

// ProjectRecords projects each record independently, preserving order.
func (p *Projector) ProjectRecords(ctx context.Context, recs []*Record, depth int, projection Projection) ([]any, error) {
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		m, err := p.ProjectRecord(ctx, rec, depth, projection)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ProjectFlatResult projects one row of a bulk read of kind. Relation fields
// present in flat are resolved through the Lookup and the related records
// projected with one hop less, the hop the compact form already stands for.
// Declared binary fields are normalized to text and every other field is
// copied unchanged.
func (p *Projector) ProjectFlatResult(ctx context.Context, kind Kind, flat map[string]any, depth int, projection Projection) (map[string]any, error) {
	schema, ok := p.registry.Schema(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	rec, err := RecordFromFlat(schema, flat)
	if err != nil {
		return nil, err
	}
	depth = p.clampDepth(depth)
	visited := visitedSet{}.with(recordKey{kind: kind, id: rec.ID})

	out := make(map[string]any, len(flat))
	for name, value := range flat {
		f, declared := schema.Field(name)
		if !declared || f.Type == Scalar {
			out[name] = value
			continue
		}
		v, err := p.field(ctx, kind, f, rec.Values[name], depth, projection.Sub(name), visited)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// ProjectFlatResults projects every row of a bulk read, preserving order.
func (p *Projector) ProjectFlatResults(ctx context.Context, kind Kind, rows []map[string]any, depth int, projection Projection) ([]any, error) {
	p.logger.Debug("Projecting bulk read",
		zap.String("kind", string(kind)),
		zap.Int("rows", len(rows)),
		zap.Int("depth", depth),
		zap.String("op", "ProjectFlatResults"),
	)
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		m, err := p.ProjectFlatResult(ctx, kind, row, depth, projection)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// project emits rec's id and fields. keep restricts which declared fields are
// emitted (empty keeps all); children carries the projections for rec's
// relation fields.
func (p *Projector) project(ctx context.Context, rec *Record, depth int, keep, children Projection, visited visitedSet) (map[string]any, error) {
	key := recordKey{kind: rec.Kind, id: rec.ID}
	if _, seen := visited[key]; seen {
		return shortForm(rec.ID, rec.DisplayName), nil
	}
	schema, ok := p.registry.Schema(rec.Kind)
	if !ok {
		p.logger.Debug("No schema for related kind, emitting short form",
			zap.String("kind", string(rec.Kind)),
			zap.Int64("id", rec.ID),
		)
		return shortForm(rec.ID, rec.DisplayName), nil
	}
	branch := visited.with(key)

	out := make(map[string]any, len(schema.Fields)+1)
	out["id"] = rec.ID
	for _, f := range schema.Fields {
		if f.Name == "id" || !keep.Allows(f.Name) {
			continue
		}
		v, err := p.field(ctx, rec.Kind, f, rec.Values[f.Name], depth, children.Sub(f.Name), branch)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

func (p *Projector) field(ctx context.Context, owner Kind, f Field, value any, depth int, sub Projection, visited visitedSet) (any, error) {
	switch f.Type {
	case Scalar:
		return value, nil
	case Binary:
		text, err := binaryText(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrFieldType, owner, f.Name, err)
		}
		return text, nil
	case Reference:
		return p.reference(ctx, owner, f, value, depth, sub, visited)
	case ReferenceSet:
		return p.referenceSet(ctx, owner, f, value, depth, sub, visited)
	default:
		return nil, fmt.Errorf("%w: %s.%s has type %s", ErrFieldType, owner, f.Name, f.Type)
	}
}

func (p *Projector) reference(ctx context.Context, owner Kind, f Field, value any, depth int, sub Projection, visited visitedSet) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		if !v {
			return nil, nil
		}
	case *Record:
		if v == nil {
			return nil, nil
		}
		if depth <= 0 {
			return shortForm(v.ID, v.DisplayName), nil
		}
		return p.project(ctx, v, depth-1, sub, sub, visited)
	case Ref:
		if depth <= 0 {
			return shortForm(v.ID, v.Name), nil
		}
		related, err := p.resolve(ctx, owner, f, []int64{v.ID})
		if err != nil {
			return nil, err
		}
		if len(related) == 0 {
			return nil, nil
		}
		return p.project(ctx, related[0], depth-1, sub, sub, visited)
	}
	return nil, fmt.Errorf("%w: %s.%s is a %s holding %T", ErrFieldType, owner, f.Name, f.Type, value)
}

func (p *Projector) referenceSet(ctx context.Context, owner Kind, f Field, value any, depth int, sub Projection, visited visitedSet) (any, error) {
	var related []*Record
	switch v := value.(type) {
	case nil:
		return []any{}, nil
	case bool:
		if v {
			return nil, fmt.Errorf("%w: %s.%s is a %s holding true", ErrFieldType, owner, f.Name, f.Type)
		}
		return []any{}, nil
	case []*Record:
		related = v
	case RefSet:
		if len(v) == 0 {
			return []any{}, nil
		}
		resolved, err := p.resolve(ctx, owner, f, v)
		if err != nil {
			return nil, err
		}
		related = resolved
	default:
		return nil, fmt.Errorf("%w: %s.%s is a %s holding %T", ErrFieldType, owner, f.Name, f.Type, value)
	}

	out := make([]any, 0, len(related))
	for _, rec := range related {
		if rec == nil {
			continue
		}
		if depth <= 0 {
			out = append(out, shortForm(rec.ID, rec.DisplayName))
			continue
		}
		m, err := p.project(ctx, rec, depth-1, sub, sub, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// resolve fetches ids of f's target kind and returns them in the order of
// ids. Ids the lookup does not return are stale and dropped.
func (p *Projector) resolve(ctx context.Context, owner Kind, f Field, ids []int64) ([]*Record, error) {
	if p.lookup == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoLookup, owner, f.Name)
	}
	found, err := p.lookup.Lookup(ctx, f.Target, ids)
	if err != nil {
		return nil, fmt.Errorf("projector: lookup %s for %s.%s: %w", f.Target, owner, f.Name, err)
	}
	byID := make(map[int64]*Record, len(found))
	for _, rec := range found {
		if rec != nil {
			byID[rec.ID] = rec
		}
	}
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			p.logger.Debug("Dropping stale reference",
				zap.String("kind", string(f.Target)),
				zap.Int64("id", id),
				zap.String("field", string(owner)+"."+f.Name),
			)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func binaryText(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case bool:
		if !v {
			return "", nil
		}
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("unexpected %T", value)
}
