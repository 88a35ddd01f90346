package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/internal/odootest"
	"github.com/ilcreatore32/odoograph/projector"
	"github.com/ilcreatore32/odoograph/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func salesRegistry() projector.Registry {
	return projector.NewRegistry(
		projector.NewSchema("sale.order",
			projector.Field{Name: "name", Type: projector.Scalar},
			projector.Field{Name: "partner_id", Type: projector.Reference, Target: "res.partner"},
			projector.Field{Name: "order_line", Type: projector.ReferenceSet, Target: "sale.order.line"},
		),
		projector.NewSchema("sale.order.line",
			projector.Field{Name: "name", Type: projector.Scalar},
			projector.Field{Name: "order_id", Type: projector.Reference, Target: "sale.order"},
			projector.Field{Name: "price_unit", Type: projector.Scalar},
		),
		projector.NewSchema("res.partner",
			projector.Field{Name: "name", Type: projector.Scalar},
			projector.Field{Name: "email", Type: projector.Scalar},
			projector.Field{Name: "image_128", Type: projector.Binary},
		),
	)
}

type fixture struct {
	odoo *odootest.Server
	srv  *Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fake := odootest.New()
	t.Cleanup(fake.Close)

	fake.Put("sale.order", map[string]any{
		"id": int64(1), "name": "SO001", "display_name": "SO001",
		"partner_id": []any{int64(7), "Acme"}, "order_line": []any{int64(10), int64(11)},
	})
	fake.Put("sale.order.line", map[string]any{
		"id": int64(10), "name": "Widget", "display_name": "Widget",
		"order_id": []any{int64(1), "SO001"}, "price_unit": 50.0,
	})
	fake.Put("sale.order.line", map[string]any{
		"id": int64(11), "name": "Gadget", "display_name": "Gadget",
		"order_id": []any{int64(1), "SO001"}, "price_unit": 100.0,
	})
	fake.Put("res.partner", map[string]any{"id": int64(7), "name": "Acme", "display_name": "Acme", "email": "info@acme.test", "image_128": false})
	fake.Put("res.partner", map[string]any{"id": int64(8), "name": "Globex", "display_name": "Globex", "email": false, "image_128": "iVBORw0K"})

	logger := zaptest.NewLogger(t)
	client, err := odoograph.New(fake.URL, fake.DB, fake.Username, fake.Password, odoograph.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	reg := salesRegistry()
	lookup := store.NewCached(store.NewOdoo(client, reg, logger))
	p := projector.New(reg, projector.WithLookup(lookup), projector.WithMaxDepth(4), projector.WithLogger(logger))

	opts = append([]Option{WithLogger(logger)}, opts...)
	return &fixture{odoo: fake, srv: New(client, p, opts...)}
}

func (f *fixture) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestRecordDetailDefaultDepth(t *testing.T) {
	f := newFixture(t)
	w, body := f.do(t, http.MethodGet, "/api/v1/records/sale.order/1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	want := map[string]any{
		"id":           1.0,
		"name":         "SO001",
		"display_name": "SO001",
		"partner_id": map[string]any{
			"id": 7.0, "name": "Acme", "email": "info@acme.test", "image_128": "",
		},
		"order_line": []any{
			map[string]any{"id": 10.0, "name": "Widget", "price_unit": 50.0,
				"order_id": map[string]any{"id": 1.0, "name": "SO001"}},
			map[string]any{"id": 11.0, "name": "Gadget", "price_unit": 100.0,
				"order_id": map[string]any{"id": 1.0, "name": "SO001"}},
		},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("detail mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordDetailDepthZeroAndProjection(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/api/v1/records/sale.order/1?depth=0", nil)
	assert.Equal(t, map[string]any{"id": 7.0, "name": "Acme"}, body["partner_id"])
	assert.Equal(t, []any{
		map[string]any{"id": 10.0, "name": "Widget"},
		map[string]any{"id": 11.0, "name": "Gadget"},
	}, body["order_line"])

	_, body = f.do(t, http.MethodGet, "/api/v1/records/sale.order/1?depth=2&fields=order_line.name,partner_id.email", nil)
	assert.Equal(t, map[string]any{"id": 7.0, "email": "info@acme.test"}, body["partner_id"])
	assert.Equal(t, []any{
		map[string]any{"id": 10.0, "name": "Widget"},
		map[string]any{"id": 11.0, "name": "Gadget"},
	}, body["order_line"])
}

func TestRecordDetailDefaultProjection(t *testing.T) {
	f := newFixture(t, WithDefaultProjections(map[string]projector.Projection{
		"sale.order": projector.ProjectionFromAllowList(map[string][]string{"partner_id": {"name"}}),
	}))

	_, body := f.do(t, http.MethodGet, "/api/v1/records/sale.order/1", nil)
	assert.Equal(t, map[string]any{"id": 7.0, "name": "Acme"}, body["partner_id"])

	_, body = f.do(t, http.MethodGet, "/api/v1/records/sale.order/1?fields=partner_id.email", nil)
	assert.Equal(t, map[string]any{"id": 7.0, "email": "info@acme.test"}, body["partner_id"])
}

func TestRecordDetailErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing record", "/api/v1/records/sale.order/99", http.StatusNotFound},
		{"bad id", "/api/v1/records/sale.order/abc", http.StatusBadRequest},
		{"unknown model", "/api/v1/records/stock.move/1", http.StatusNotFound},
		{"bad depth", "/api/v1/records/sale.order/1?depth=deep", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestBackendFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.odoo.FailMethod("sale.order", "search_read", "psycopg2.OperationalError: server closed the connection")

	w, body := f.do(t, http.MethodGet, "/api/v1/records/sale.order/1", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["error"], "OperationalError")
}

func TestRecordList(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/api/v1/records/res.partner?limit=1&depth=0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2.0, body["total_count"])
	require.Len(t, body["records"], 1)
	assert.Equal(t, "Acme", body["records"].([]any)[0].(map[string]any)["name"])

	domain := url.QueryEscape(`[["name", "=", "Globex"]]`)
	_, body = f.do(t, http.MethodGet, "/api/v1/records/res.partner?domain="+domain, nil)
	assert.NotContains(t, body, "total_count")
	require.Len(t, body["records"], 1)
	globex := body["records"].([]any)[0].(map[string]any)
	assert.Equal(t, 8.0, globex["id"])
	assert.Equal(t, "iVBORw0K", globex["image_128"])

	w, _ = f.do(t, http.MethodGet, "/api/v1/records/res.partner?domain=not-json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.do(t, http.MethodGet, "/api/v1/records/res.partner?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallSearchReadIsProjected(t *testing.T) {
	f := newFixture(t)

	depth := 1
	w, body := f.do(t, http.MethodPost, "/api/v1/call", CallRequest{
		Model:  "sale.order",
		Method: "search_read",
		Args:   []any{[]any{[]any{"id", "=", 1}}},
		Kwargs: map[string]any{"fields": []any{"name", "partner_id"}},
		Depth:  &depth,
		Limit:  5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.0, body["total_count"])

	rows := body["result"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{
		"id":   1.0,
		"name": "SO001",
		"partner_id": map[string]any{
			"id": 7.0, "name": "Acme", "email": "info@acme.test", "image_128": "",
		},
	}, rows[0])

	calls := f.odoo.Calls()
	var kwargs map[string]any
	for _, c := range calls {
		if c.Model == "sale.order" && c.Method == "search_read" {
			kwargs = c.Kwargs
		}
	}
	assert.Equal(t, int64(5), kwargs["limit"])
}

func TestCallPassesThroughOtherMethods(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/call", CallRequest{
		Model: "res.partner", Method: "search", Args: []any{[]any{}}, Limit: 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{7.0, 8.0}, body["result"])
	assert.Equal(t, 2.0, body["total_count"])
	assert.Equal(t, 10.0, body["limit"])
	assert.Equal(t, 0.0, body["offset"])
	assert.Equal(t, false, body["has_more"])

	w, body = f.do(t, http.MethodPost, "/api/v1/call", CallRequest{
		Model: "res.partner", Method: "search_count", Args: []any{[]any{}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, body["result"])
	assert.NotContains(t, body, "total_count")
}

func TestCallCountsKeywordDomain(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/call", CallRequest{
		Model:  "res.partner",
		Method: "search_read",
		Kwargs: map[string]any{
			"domain": []any{[]any{"name", "=", "Globex"}},
			"fields": []any{"name"},
		},
		Limit: 5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, body["result"], 1)
	assert.Equal(t, 1.0, body["total_count"])
	assert.Equal(t, false, body["has_more"])

	var counted []any
	for _, c := range f.odoo.Calls() {
		if c.Model == "res.partner" && c.Method == "search_count" {
			counted = c.Args
		}
	}
	assert.Equal(t, []any{[]any{[]any{"name", "=", "Globex"}}}, counted)
}

func TestCallReportsMorePages(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/call", CallRequest{
		Model: "res.partner", Method: "search", Args: []any{[]any{}}, Limit: 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{7.0}, body["result"])
	assert.Equal(t, 2.0, body["total_count"])
	assert.Equal(t, true, body["has_more"])

	w, body = f.do(t, http.MethodPost, "/api/v1/call", CallRequest{
		Model: "res.partner", Method: "search", Args: []any{[]any{}}, Limit: 1, Offset: 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{8.0}, body["result"])
	assert.Equal(t, 1.0, body["offset"])
	assert.Equal(t, false, body["has_more"])
}

func TestCallErrors(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/call", CallRequest{Model: "res.partner", Method: "frobnicate"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "invalid Odoo method")

	w, _ = f.do(t, http.MethodPost, "/api/v1/call", map[string]any{"method": "search"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/call", CallRequest{Model: "res.partner", Method: "search", Offset: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", nil)

	w, _ := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "odoograph_http_requests_total")
}

func TestClampDepth(t *testing.T) {
	s := New(nil, projector.New(nil), WithDepth(1, 3))
	for raw, want := range map[string]int{"": 1, "-2": 0, "2": 2, "9": 3} {
		got, err := s.depth(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, raw)
	}
}

func TestNormalizeNumbers(t *testing.T) {
	in := []any{1.0, 2.5, map[string]any{"ids": []any{3.0}}, "x"}
	assert.Equal(t, []any{int64(1), 2.5, map[string]any{"ids": []any{int64(3)}}, "x"}, normalizeNumbers(in))
}
