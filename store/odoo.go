// Package store provides the backing-store capabilities a projector.Projector
// resolves compact references with: an Odoo lookup over XML-RPC, an
// in-memory store for fixtures and tests, and a TTL cache in front of either.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/projector"
)

// Searcher is the part of *odoograph.Client the Odoo store uses.
type Searcher interface {
	SearchRead(ctx context.Context, model odoograph.Model, domain odoograph.Domain, fields odoograph.Fields, options ...*odoograph.Options) ([]map[string]any, error)
}

// Odoo resolves records with one search_read per lookup. Ids that no longer
// exist are simply absent from the answer.
type Odoo struct {
	client   Searcher
	registry projector.Registry
	logger   *zap.Logger
}

// NewOdoo returns a lookup reading the kinds of registry through client.
// A nil logger discards output.
func NewOdoo(client Searcher, registry projector.Registry, logger *zap.Logger) *Odoo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Odoo{client: client, registry: registry, logger: logger}
}

// Lookup implements projector.Lookup. Archived records are included so that a
// relation to an inactive partner still resolves.
func (o *Odoo) Lookup(ctx context.Context, kind projector.Kind, ids []int64) ([]*projector.Record, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []*projector.Record{}, nil
	}

	schema, ok := o.registry.Schema(kind)
	if !ok {
		// Only the short form is ever emitted for undeclared kinds.
		schema = projector.NewSchema(kind)
	}
	fields := odoograph.Fields{"display_name"}
	for _, name := range schema.FieldNames() {
		if name != "id" && name != "display_name" {
			fields = append(fields, name)
		}
	}

	o.logger.Debug("Looking up Odoo records",
		zap.String("model", string(kind)),
		zap.Int64s("ids", ids),
		zap.String("op", "Lookup"),
	)
	rows, err := o.client.SearchRead(ctx, odoograph.Model(kind),
		odoograph.Domain{{"id", "in", ids}},
		fields,
		&odoograph.Options{Context: odoograph.OdooContext{"active_test": false}},
	)
	if err != nil {
		return nil, err
	}

	recs := make([]*projector.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := projector.RecordFromFlat(schema, row)
		if err != nil {
			return nil, fmt.Errorf("store: decode %s row: %w", kind, err)
		}
		recs = append(recs, rec)
	}
	if len(recs) < len(ids) {
		o.logger.Debug("Some referenced Odoo records no longer exist",
			zap.String("model", string(kind)),
			zap.Int("requested", len(ids)),
			zap.Int("found", len(recs)),
		)
	}
	return recs, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
