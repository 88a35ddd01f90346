package projector

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind is the declared type of a record, e.g. "sale.order".
type Kind string

// FieldType tags how a field's value is projected.
type FieldType int

const (
	// Scalar values (text, numbers, booleans, dates, selections) are copied verbatim.
	Scalar FieldType = iota
	// Binary values are emitted as text, never as raw bytes or null.
	Binary
	// Reference points at a single related record (Odoo many2one).
	Reference
	// ReferenceSet holds an ordered collection of related records (one2many/many2many).
	ReferenceSet
)

var fieldTypeNames = map[FieldType]string{
	Scalar:       "scalar",
	Binary:       "binary",
	Reference:    "reference",
	ReferenceSet: "reference_set",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// IsRelation reports whether the field points at other records.
func (t FieldType) IsRelation() bool {
	return t == Reference || t == ReferenceSet
}

// ParseFieldType converts the text form of a field type.
func ParseFieldType(s string) (FieldType, error) {
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	return Scalar, fmt.Errorf("projector: unknown field type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t FieldType) MarshalText() ([]byte, error) {
	name, ok := fieldTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("projector: unknown field type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FieldType) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Field is a single declared field of a Kind.
type Field struct {
	Name   string    `yaml:"name"`
	Type   FieldType `yaml:"type"`
	Target Kind      `yaml:"target,omitempty"` // related kind, relation fields only
}

// Schema is the ordered field declaration of one Kind.
type Schema struct {
	Kind   Kind
	Fields []Field

	index map[string]int
}

// NewSchema builds a Schema. Later duplicates of a field name replace earlier ones.
func NewSchema(kind Kind, fields ...Field) *Schema {
	s := &Schema{Kind: kind, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if i, ok := s.index[f.Name]; ok {
			s.Fields[i] = f
			continue
		}
		s.index[f.Name] = len(s.Fields)
		s.Fields = append(s.Fields, f)
	}
	return s
}

// Field returns the declaration of name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	if s.index == nil {
		for _, f := range s.Fields {
			if f.Name == name {
				return f, true
			}
		}
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// FieldNames returns the declared names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Registry maps each Kind to its Schema. It is built once at startup and
// only read afterwards, so it is safe to share between goroutines.
type Registry map[Kind]*Schema

// NewRegistry indexes the given schemas by kind.
func NewRegistry(schemas ...*Schema) Registry {
	r := make(Registry, len(schemas))
	for _, s := range schemas {
		r[s.Kind] = s
	}
	return r
}

// Schema returns the schema of kind.
func (r Registry) Schema(kind Kind) (*Schema, bool) {
	s, ok := r[kind]
	return s, ok
}

// Kinds returns the registered kinds sorted by name.
func (r Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r))
	for k := range r {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Validate reports relation fields without a target and targets that are
// not declared in the registry.
func (r Registry) Validate() error {
	var errs []error
	for _, kind := range r.Kinds() {
		for _, f := range r[kind].Fields {
			if !f.Type.IsRelation() {
				continue
			}
			if f.Target == "" {
				errs = append(errs, fmt.Errorf("%w: %s.%s has no target", ErrUnknownKind, kind, f.Name))
				continue
			}
			if _, ok := r[f.Target]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s.%s targets %s", ErrUnknownKind, kind, f.Name, f.Target))
			}
		}
	}
	return errors.Join(errs...)
}

// registryDocument is the YAML layout: kind name to ordered field list.
type registryDocument map[Kind][]Field

// LoadRegistry decodes a YAML registry document:
//
//	sale.order:
//	  - {name: name, type: scalar}
//	  - {name: partner_id, type: reference, target: res.partner}
func LoadRegistry(r io.Reader) (Registry, error) {
	var doc registryDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Registry{}, nil
		}
		return nil, fmt.Errorf("projector: decode registry: %w", err)
	}
	reg := make(Registry, len(doc))
	for kind, fields := range doc {
		for _, f := range fields {
			if f.Name == "" {
				return nil, fmt.Errorf("projector: %s declares a field without name", kind)
			}
		}
		reg[kind] = NewSchema(kind, fields...)
	}
	return reg, nil
}

// WriteRegistry encodes the registry in the layout LoadRegistry reads.
func WriteRegistry(w io.Writer, reg Registry) error {
	doc := make(registryDocument, len(reg))
	for kind, s := range reg {
		doc[kind] = s.Fields
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("projector: encode registry: %w", err)
	}
	return enc.Close()
}
