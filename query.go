package odoograph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// executeRPC runs execute_kw(model, method, args, options) and decodes the
// answer into reply. A call rejected with ErrAccessDenied is retried once
// on a fresh session, the way an expired Odoo session is recovered.
// Concurrent calls rejected on the same session share one re-authentication.
func (c *Client) executeRPC(ctx context.Context, model, method string, args []any, options map[string]any, reply any) error {
	used, err := c.executeOnce(ctx, model, method, args, options, reply)
	if err == nil || !errors.Is(err, ErrAccessDenied) {
		return err
	}
	c.logger.Warn("Odoo session rejected, re-authenticating",
		zap.String("model", model),
		zap.String("method", method),
		zap.Error(err),
	)
	c.refresh(used)
	_, err = c.executeOnce(ctx, model, method, args, options, reply)
	return err
}

// executeOnce returns the session the call ran on, nil when none was acquired.
func (c *Client) executeOnce(ctx context.Context, model, method string, args []any, options map[string]any, reply any) (*session, error) {
	sess, err := c.acquire(ctx)
	if err != nil {
		c.logger.Error("Failed to get Odoo connection for RPC call",
			zap.Error(err),
			zap.String("model", model),
			zap.String("method", method),
		)
		return nil, err
	}

	if args == nil {
		args = []any{}
	}
	if options == nil {
		options = map[string]any{}
	}
	// execute_kw(db, uid, password, model, method, args, kwargs)
	callArgs := []any{c.db, sess.uid, c.password, model, method, args, options}

	callChan := make(chan error, 1)
	go func() {
		err := sess.rpc.Call("execute_kw", callArgs, reply)
		c.release(sess)
		callChan <- err
	}()

	select {
	case <-ctx.Done():
		c.logger.Error("Odoo RPC call cancelled by context timeout/cancellation",
			zap.Error(ctx.Err()),
			zap.String("model", model),
			zap.String("method", method),
		)
		return sess, ctx.Err()
	case err = <-callChan:
		if err != nil {
			c.logger.Error("Failed to execute Odoo RPC call",
				zap.Error(err),
				zap.String("model", model),
				zap.String("method", method),
			)
			return sess, parseRPCError(fmt.Errorf("failed to call Odoo method '%s' on model '%s': %w", method, model, err), method)
		}
	}
	return sess, nil
}

// Search returns the ids of model matching domain.
func (c *Client) Search(ctx context.Context, model Model, domain Domain, options ...*Options) ([]int64, error) {
	c.logger.Debug("Performing Odoo search",
		zap.String("model", string(model)),
		zap.Any("domain", domain),
		zap.String("op", "Search"),
	)

	var ids []int64
	err := c.executeRPC(ctx, string(model), "search", []any{domain.ToRPC()}, firstOptions(options...), &ids)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Odoo search completed",
		zap.String("model", string(model)),
		zap.Int("results", len(ids)),
		zap.String("op", "Search"),
	)
	return ids, nil
}

// SearchOne returns the first id matching domain, or ErrRecordNotFound.
// Any limit in options is replaced by 1.
func (c *Client) SearchOne(ctx context.Context, model Model, domain Domain, options ...*Options) (int64, error) {
	kwargs := firstOptions(options...)
	kwargs["limit"] = 1

	var ids []int64
	err := c.executeRPC(ctx, string(model), "search", []any{domain.ToRPC()}, kwargs, &ids)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		c.logger.Info("No records found for Odoo searchOne",
			zap.String("model", string(model)),
			zap.Any("domain", domain),
			zap.String("op", "SearchOne"),
		)
		return 0, fmt.Errorf("%w: for model '%s' with domain %v", ErrRecordNotFound, string(model), domain.ToRPC())
	}
	return ids[0], nil
}

// SearchCount returns how many records of model match domain.
func (c *Client) SearchCount(ctx context.Context, model Model, domain Domain, options ...*Options) (int64, error) {
	kwargs := firstOptions(options...)
	// search_count rejects paging kwargs
	delete(kwargs, "limit")
	delete(kwargs, "offset")
	delete(kwargs, "order")

	var count int64
	if err := c.executeRPC(ctx, string(model), "search_count", []any{domain.ToRPC()}, kwargs, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Read fetches fields of the records ids. Odoo faults when one of the ids
// no longer exists; use SearchRead with an id domain to tolerate that.
func (c *Client) Read(ctx context.Context, model Model, ids []int64, fields Fields, options ...*Options) ([]map[string]any, error) {
	c.logger.Debug("Performing Odoo read",
		zap.String("model", string(model)),
		zap.Int64s("ids", ids),
		zap.Strings("fields", fields),
		zap.String("op", "Read"),
	)

	if len(ids) == 0 {
		return []map[string]any{}, nil
	}

	var records []map[string]any
	err := c.executeRPC(ctx, string(model), "read", []any{ids, fields.ToRPC()}, firstOptions(options...), &records)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Odoo read completed",
		zap.String("model", string(model)),
		zap.Int("records_count", len(records)),
		zap.String("op", "Read"),
	)
	return records, nil
}

// ReadOne reads a single record, or returns ErrRecordNotFound.
func (c *Client) ReadOne(ctx context.Context, model Model, id int64, fields Fields, options ...*Options) (map[string]any, error) {
	records, err := c.Read(ctx, model, []int64{id}, fields, options...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: for model '%s' with ID %v", ErrRecordNotFound, string(model), id)
	}
	return records[0], nil
}

// SearchRead combines search and read in one round trip. Relation fields come
// back in compact form: many2one as [id, display_name] or false, x2many as
// id lists.
func (c *Client) SearchRead(ctx context.Context, model Model, domain Domain, fields Fields, options ...*Options) ([]map[string]any, error) {
	c.logger.Debug("Performing Odoo search_read",
		zap.String("model", string(model)),
		zap.Any("domain", domain),
		zap.Strings("fields", fields),
		zap.String("op", "SearchRead"),
	)

	kwargs := firstOptions(options...)
	if len(fields) > 0 {
		kwargs["fields"] = fields.ToRPC()
	}

	var records []map[string]any
	err := c.executeRPC(ctx, string(model), "search_read", []any{domain.ToRPC()}, kwargs, &records)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Odoo search_read completed",
		zap.String("model", string(model)),
		zap.Int("records_count", len(records)),
		zap.String("op", "SearchRead"),
	)
	return records, nil
}
