package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/internal/odootest"
	"github.com/ilcreatore32/odoograph/projector"
)

const testSchema = `
sale.order:
  - {name: name, type: scalar}
  - {name: partner_id, type: reference, target: res.partner}
res.partner:
  - {name: name, type: scalar}
  - {name: email, type: scalar}
`

const testFixture = `
sale.order:
  - {id: 1, name: SO001, partner_id: [7, Acme]}
res.partner:
  - {id: 7, name: Acme, email: info@acme.test}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearOdooEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ODOO_URL", "ODOO_DB", "ODOO_USERNAME", "ODOO_PASSWORD",
		"ODOO_SKIP_TLS_VERIFY", "ODOOGRAPH_ADDR", "ODOOGRAPH_LOG_ENV"} {
		t.Setenv(key, "")
	}
}

func pointAtFake(t *testing.T, fake *odootest.Server) {
	t.Helper()
	clearOdooEnv(t)
	t.Setenv("ODOO_URL", fake.URL)
	t.Setenv("ODOO_DB", fake.DB)
	t.Setenv("ODOO_USERNAME", fake.Username)
	t.Setenv("ODOO_PASSWORD", fake.Password)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestProjectFromFixture(t *testing.T) {
	clearOdooEnv(t)
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.yaml", testSchema)
	fixture := writeFile(t, dir, "fixture.yaml", testFixture)

	out, err := run(t, "project", "sale.order", "1",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--schema", schema, "--fixture", fixture, "--depth", "1")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{
		"id":   1.0,
		"name": "SO001",
		"partner_id": map[string]any{
			"id": 7.0, "name": "Acme", "email": "info@acme.test",
		},
	}, got)

	out, err = run(t, "project", "sale.order", "1",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--schema", schema, "--fixture", fixture, "--depth", "0")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{"id": 7.0, "name": "Acme"}, got["partner_id"])
}

func TestProjectErrors(t *testing.T) {
	clearOdooEnv(t)
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.yaml", testSchema)
	fixture := writeFile(t, dir, "fixture.yaml", testFixture)
	cfg := filepath.Join(dir, "missing.yaml")

	_, err := run(t, "project", "sale.order", "one", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")

	_, err = run(t, "project", "sale.order", "2", "--config", cfg, "--schema", schema, "--fixture", fixture)
	require.ErrorIs(t, err, odoograph.ErrRecordNotFound)

	_, err = run(t, "project", "sale.order", "1", "--config", cfg, "--fixture", fixture)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a schema")

	_, err = run(t, "project", "sale.order", "1", "--config", cfg, "--schema", schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odoo.url is not configured")
}

func TestProjectFromOdoo(t *testing.T) {
	fake := odootest.New()
	t.Cleanup(fake.Close)
	fake.Put("sale.order", map[string]any{"id": int64(1), "name": "SO001", "display_name": "SO001", "partner_id": []any{int64(7), "Acme"}})
	fake.Put("res.partner", map[string]any{"id": int64(7), "name": "Acme", "display_name": "Acme", "email": "info@acme.test"})
	pointAtFake(t, fake)

	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.yaml", testSchema)
	out, err := run(t, "project", "sale.order", "1",
		"--config", filepath.Join(dir, "missing.yaml"), "--schema", schema, "--fields", "partner_id.email")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "SO001", got["name"])
	assert.Equal(t, map[string]any{"id": 7.0, "email": "info@acme.test"}, got["partner_id"])
}

func TestSchemaCommand(t *testing.T) {
	fake := odootest.New()
	t.Cleanup(fake.Close)
	fake.SetField("res.partner", "name", "char", "")
	fake.SetField("res.partner", "parent_id", "many2one", "res.partner")
	pointAtFake(t, fake)

	out, err := run(t, "schema", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--models", "res.partner")
	require.NoError(t, err)

	reg, err := projector.LoadRegistry(bytes.NewBufferString(out))
	require.NoError(t, err)
	schema, ok := reg.Schema("res.partner")
	require.True(t, ok)
	assert.Equal(t, []projector.Field{
		{Name: "name", Type: projector.Scalar},
		{Name: "parent_id", Type: projector.Reference, Target: "res.partner"},
	}, schema.Fields)
	require.NoError(t, reg.Validate())
}

func TestSchemaCommandNeedsModels(t *testing.T) {
	clearOdooEnv(t)
	_, err := run(t, "schema", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models given")
}
