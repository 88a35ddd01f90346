package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/projector"
)

// FieldDescriber is the part of *odoograph.Client Introspect uses.
type FieldDescriber interface {
	FieldsGet(ctx context.Context, model odoograph.Model) ([]odoograph.FieldInfo, error)
}

// FieldTypeFor maps an Odoo ttype to a projector field type. The second
// result is false for ttypes the projector does not carry (properties,
// many2one_reference, json, ...).
func FieldTypeFor(ttype string) (projector.FieldType, bool) {
	switch ttype {
	case "many2one":
		return projector.Reference, true
	case "one2many", "many2many":
		return projector.ReferenceSet, true
	case "binary", "image":
		return projector.Binary, true
	case "char", "text", "html", "integer", "float", "monetary", "boolean",
		"date", "datetime", "selection":
		return projector.Scalar, true
	}
	return 0, false
}

// Introspect builds a registry for models from fields_get. Relations to
// models outside the list are kept; the projector renders them in short form.
func Introspect(ctx context.Context, client FieldDescriber, models ...projector.Kind) (projector.Registry, error) {
	schemas := make([]*projector.Schema, 0, len(models))
	for _, model := range models {
		infos, err := client.FieldsGet(ctx, odoograph.Model(model))
		if err != nil {
			return nil, fmt.Errorf("store: introspect %s: %w", model, err)
		}
		fields := make([]projector.Field, 0, len(infos))
		for _, info := range infos {
			if info.Name == "id" || strings.HasPrefix(info.Name, "__") {
				continue
			}
			ft, ok := FieldTypeFor(info.Type)
			if !ok {
				continue
			}
			f := projector.Field{Name: info.Name, Type: ft}
			if ft.IsRelation() {
				if info.Relation == "" {
					continue
				}
				f.Target = projector.Kind(info.Relation)
			}
			fields = append(fields, f)
		}
		schemas = append(schemas, projector.NewSchema(model, fields...))
	}
	return projector.NewRegistry(schemas...), nil
}
