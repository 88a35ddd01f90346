package projector

import (
	"sort"
	"strings"
)

// Projection restricts which sub-fields of related records are emitted.
//
// At the top level the keys are relation field names of the root record.
// The Projection stored under a key lists the sub-fields kept on the related
// record; an empty one keeps every field. The same shape repeats one level
// down, so {"order_line": {"product_id": {"id": nil, "name": nil}}} keeps only
// product_id on each order line and only id and name on that product. The
// record id is always emitted; names that are not declared on the related
// kind match nothing.
type Projection map[string]Projection

// Sub returns the projection attached to field, nil when unrestricted.
func (p Projection) Sub(field string) Projection {
	if p == nil {
		return nil
	}
	return p[field]
}

// Allows reports whether field is kept. An empty projection keeps everything.
func (p Projection) Allows(field string) bool {
	if len(p) == 0 {
		return true
	}
	_, ok := p[field]
	return ok
}

// Paths flattens the projection back into dotted paths, sorted.
func (p Projection) Paths() []string {
	var out []string
	var walk func(prefix string, node Projection)
	walk = func(prefix string, node Projection) {
		for name, sub := range node {
			path := name
			if prefix != "" {
				path = prefix + "." + name
			}
			if len(sub) == 0 {
				out = append(out, path)
				continue
			}
			walk(path, sub)
		}
	}
	walk("", p)
	sort.Strings(out)
	return out
}

// ParseProjection builds a projection from dotted paths such as
// "categ_id.name" or "order_line.product_id.id". A path with a single
// segment names a relation with no restriction. Blank segments are ignored.
func ParseProjection(paths []string) Projection {
	root := Projection{}
	for _, raw := range paths {
		node := root
		for _, seg := range strings.Split(strings.TrimSpace(raw), ".") {
			seg = strings.TrimSpace(seg)
			if seg == "" {
				continue
			}
			next, ok := node[seg]
			if !ok || next == nil {
				next = Projection{}
				node[seg] = next
			}
			node = next
		}
	}
	return root
}

// ProjectionFromAllowList builds a one-level projection from a map of
// relation field name to allowed sub-field names.
func ProjectionFromAllowList(allow map[string][]string) Projection {
	p := make(Projection, len(allow))
	for field, subs := range allow {
		sub := make(Projection, len(subs))
		for _, s := range subs {
			sub[s] = nil
		}
		p[field] = sub
	}
	return p
}
