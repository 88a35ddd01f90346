package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/projector"
)

// CallRequest is the body of POST /api/v1/call.
type CallRequest struct {
	Model  string         `json:"model" binding:"required"`
	Method string         `json:"method" binding:"required"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
	Depth  *int           `json:"depth"`
	Fields []string       `json:"fields"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListResponse is the body of GET /api/v1/records/:model.
type ListResponse struct {
	Records    []any  `json:"records"`
	TotalCount *int64 `json:"total_count,omitempty"`
}

// CallResponse is the body of POST /api/v1/call. The paging fields are set
// only when a paged search ran with a limit.
type CallResponse struct {
	Result     any    `json:"result"`
	TotalCount *int64 `json:"total_count,omitempty"`
	Limit      *int   `json:"limit,omitempty"`
	Offset     *int   `json:"offset,omitempty"`
	HasMore    *bool  `json:"has_more,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps backend and projection errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, odoograph.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, odoograph.ErrInvalidModel),
		errors.Is(err, odoograph.ErrInvalidMethod):
		return http.StatusBadRequest
	case errors.Is(err, projector.ErrFieldType),
		errors.Is(err, projector.ErrNoLookup):
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

// depth reads the depth query parameter, clamped to [0, maxDepth].
func (s *Server) depth(raw string) (int, error) {
	if raw == "" {
		return s.clamp(s.defaultDepth), nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid depth %q", raw)
	}
	return s.clamp(d), nil
}

func (s *Server) clamp(d int) int {
	if d < 0 {
		return 0
	}
	if s.maxDepth > 0 && d > s.maxDepth {
		return s.maxDepth
	}
	return d
}

func (s *Server) projection(model string, paths []string) projector.Projection {
	var cleaned []string
	for _, p := range paths {
		for _, part := range strings.Split(p, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cleaned = append(cleaned, part)
			}
		}
	}
	if len(cleaned) > 0 {
		return projector.ParseProjection(cleaned)
	}
	return s.projections[model]
}

func (s *Server) schema(c *gin.Context, model string) (*projector.Schema, bool) {
	schema, ok := s.projector.Registry().Schema(projector.Kind(model))
	if !ok {
		s.fail(c, http.StatusNotFound, fmt.Errorf("%w: %s is not served", projector.ErrUnknownKind, model))
		return nil, false
	}
	return schema, true
}

func readFields(schema *projector.Schema) odoograph.Fields {
	fields := odoograph.Fields{"display_name"}
	for _, name := range schema.FieldNames() {
		if name != "id" && name != "display_name" {
			fields = append(fields, name)
		}
	}
	return fields
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func (s *Server) handleList(c *gin.Context) {
	model := c.Param("model")
	schema, ok := s.schema(c, model)
	if !ok {
		return
	}
	depth, err := s.depth(c.Query("depth"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	domain := odoograph.Domain{}
	if raw := c.Query("domain"); raw != "" {
		var decoded []any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid domain: %w", err))
			return
		}
		domain = odoograph.DomainFromRPC(normalizeNumbers(decoded).([]any))
	}

	ctx := c.Request.Context()
	opts := &odoograph.Options{Limit: limit, Offset: offset, Order: c.Query("order")}
	rows, err := s.backend.SearchRead(ctx, odoograph.Model(model), domain, readFields(schema), opts)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	projectionDepth.WithLabelValues(model).Observe(float64(depth))
	records, err := s.projector.ProjectFlatResults(ctx, projector.Kind(model), rows, depth, s.projection(model, c.QueryArray("fields")))
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}

	resp := ListResponse{Records: records}
	if limit > 0 {
		total, err := s.backend.SearchCount(ctx, odoograph.Model(model), domain)
		if err != nil {
			s.fail(c, statusFor(err), err)
			return
		}
		resp.TotalCount = &total
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDetail(c *gin.Context) {
	model := c.Param("model")
	schema, ok := s.schema(c, model)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid id %q", c.Param("id")))
		return
	}
	depth, err := s.depth(c.Query("depth"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	rows, err := s.backend.SearchRead(ctx, odoograph.Model(model),
		odoograph.Domain{{"id", "=", id}}, readFields(schema), &odoograph.Options{Limit: 1})
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	if len(rows) == 0 {
		s.fail(c, http.StatusNotFound, fmt.Errorf("%w: %s %d", odoograph.ErrRecordNotFound, model, id))
		return
	}

	projectionDepth.WithLabelValues(model).Observe(float64(depth))
	out, err := s.projector.ProjectFlatResult(ctx, projector.Kind(model), rows[0], depth, s.projection(model, c.QueryArray("fields")))
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// handleCall forwards any model method. Rows returned by read and
// search_read on a served model are projected like the records endpoints.
func (s *Server) handleCall(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Limit < 0 || req.Offset < 0 {
		s.fail(c, http.StatusBadRequest, errors.New("limit and offset must not be negative"))
		return
	}

	args, _ := normalizeNumbers(req.Args).([]any)
	if args == nil {
		args = []any{}
	}
	kwargs, _ := normalizeNumbers(req.Kwargs).(map[string]any)
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	paged := req.Method == "search" || req.Method == "search_read"
	if paged {
		if req.Limit > 0 {
			kwargs["limit"] = req.Limit
		}
		if req.Offset > 0 {
			kwargs["offset"] = req.Offset
		}
	}

	ctx := c.Request.Context()
	s.logger.Debug("Forwarding call",
		zap.String("model", req.Model),
		zap.String("method", req.Method),
		zap.String("op", "handleCall"),
	)
	result, err := s.backend.Call(ctx, odoograph.Model(req.Model), req.Method, args, kwargs)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}

	resp := CallResponse{Result: result}
	if req.Method == "read" || req.Method == "search_read" {
		if _, served := s.projector.Registry().Schema(projector.Kind(req.Model)); served {
			if rows, ok := asRows(result); ok {
				depth := s.defaultDepth
				if req.Depth != nil {
					depth = *req.Depth
				}
				depth = s.clamp(depth)
				projectionDepth.WithLabelValues(req.Model).Observe(float64(depth))
				projected, err := s.projector.ProjectFlatResults(ctx, projector.Kind(req.Model), rows, depth, s.projection(req.Model, req.Fields))
				if err != nil {
					s.fail(c, statusFor(err), err)
					return
				}
				resp.Result = projected
			}
		}
	}

	if paged && req.Limit > 0 {
		total, err := s.backend.SearchCount(ctx, odoograph.Model(req.Model), odoograph.DomainFromRPC(callDomain(args, kwargs)))
		if err != nil {
			s.fail(c, statusFor(err), err)
			return
		}
		hasMore := int64(req.Offset+req.Limit) < total
		resp.TotalCount = &total
		resp.Limit = &req.Limit
		resp.Offset = &req.Offset
		resp.HasMore = &hasMore
	}
	c.JSON(http.StatusOK, resp)
}

// callDomain returns the search domain of a forwarded call: the first
// positional argument, else the domain keyword argument.
func callDomain(args []any, kwargs map[string]any) []any {
	if len(args) > 0 {
		domain, _ := args[0].([]any)
		return domain
	}
	domain, _ := kwargs["domain"].([]any)
	return domain
}

func asRows(result any) ([]map[string]any, bool) {
	list, ok := result.([]any)
	if !ok {
		return nil, false
	}
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}

// normalizeNumbers turns the integral float64 values encoding/json produces
// into int64, so ids reach Odoo as XML-RPC ints.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeNumbers(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalizeNumbers(item)
		}
		return out
	}
	return v
}
