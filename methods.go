// odoograph/methods.go
package odoograph

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Call executes any model method through execute_kw and returns the raw
// decoded answer: int64, float64, string, bool, []any or map[string]any.
func (c *Client) Call(ctx context.Context, model Model, method string, args []any, kwargs map[string]any) (any, error) {
	c.logger.Debug("Performing Odoo custom method call",
		zap.String("model", string(model)),
		zap.String("method", method),
		zap.Any("args", args),
		zap.Any("kwargs", kwargs),
		zap.String("op", "Call"),
	)

	var result any
	if err := c.executeRPC(ctx, string(model), method, args, kwargs, &result); err != nil {
		return nil, err
	}

	c.logger.Info("Odoo custom method call completed successfully",
		zap.String("model", string(model)),
		zap.String("method", method),
		zap.String("op", "Call"),
	)
	return result, nil
}

// FieldInfo is the subset of fields_get attributes needed to build a schema.
type FieldInfo struct {
	Name     string
	Type     string // Odoo ttype: char, many2one, one2many, binary, ...
	Relation string // comodel name, relation fields only
	Label    string
}

// FieldsGet describes every field of model, sorted by name.
func (c *Client) FieldsGet(ctx context.Context, model Model) ([]FieldInfo, error) {
	var raw map[string]any
	kwargs := map[string]any{"attributes": []string{"type", "relation", "string"}}
	if err := c.executeRPC(ctx, string(model), "fields_get", []any{}, kwargs, &raw); err != nil {
		return nil, err
	}

	fields := make([]FieldInfo, 0, len(raw))
	for name, attrs := range raw {
		m, ok := attrs.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: fields_get %s.%s returned %T", ErrInvalidResponse, model, name, attrs)
		}
		info := FieldInfo{Name: name}
		info.Type, _ = m["type"].(string)
		info.Relation, _ = m["relation"].(string)
		info.Label, _ = m["string"].(string)
		fields = append(fields, info)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	c.logger.Debug("Odoo fields_get completed",
		zap.String("model", string(model)),
		zap.Int("fields", len(fields)),
		zap.String("op", "FieldsGet"),
	)
	return fields, nil
}
