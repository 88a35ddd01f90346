package odoograph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRPCErrorClassifies(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		method string
		want   error
	}{
		{"missing model", "Fault(1): The model does not exist: x.y", "search", ErrInvalidModel},
		{"registry", "<Fault 2: \"'x.y' not found in registry\">", "search", ErrInvalidModel},
		{"object attribute on model", "Fault(1): 'object' object has no attribute 'pool' (model x.y)", "search", ErrInvalidModel},
		{"missing method", "Fault(1): Object has no method frobnicate", "frobnicate", ErrInvalidMethod},
		{"called method missing", "fault 1: 'res.partner' object has no attribute 'frob'", "frob", ErrInvalidMethod},
		{"attribute error in method body", "Fault(1): AttributeError: 'NoneType' object has no attribute 'id'", "action_confirm", ErrOdooRPC},
		{"other attribute of the model", "Fault(1): 'sale.order' object has no attribute 'x_margin'", "action_confirm", ErrOdooRPC},
		{"access denied", "Fault(3): Access Denied", "search", ErrAccessDenied},
		{"session expired", "Fault(100): odoo.http.SessionExpiredException: Session expired", "search", ErrAccessDenied},
		{"invalid session", "Fault(1): Invalid Session", "search", ErrAccessDenied},
		{"anything else", "Fault(2): ValueError: bad domain", "search", ErrOdooRPC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseRPCError(errors.New(tt.msg), tt.method)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseRPCErrorExtractsFault(t *testing.T) {
	wrapped := errors.New("failed to call Odoo method 'read' on model 'res.partner': Fault(2): Record does not exist")
	err := parseRPCError(wrapped, "read")

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, 2, rpcErr.Code)
	assert.Equal(t, "Record does not exist", rpcErr.Message)
	assert.ErrorIs(t, err, wrapped)
}

func TestParseRPCErrorPythonRepr(t *testing.T) {
	err := parseRPCError(errors.New("<Fault 4: 'boom'>"), "")

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, 4, rpcErr.Code)
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestParseRPCErrorWithoutFault(t *testing.T) {
	err := parseRPCError(errors.New("connection refused"), "")

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Zero(t, rpcErr.Code)
	assert.Equal(t, "connection refused", rpcErr.Message)
	assert.NoError(t, parseRPCError(nil, ""))
}
