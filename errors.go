// odoograph/errors.go
package odoograph

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Common Odoo client specific errors.
var (
	// ErrAuthenticationFailed indica que la autenticación con Odoo falló.
	ErrAuthenticationFailed = errors.New("odoograph: authentication failed")

	// ErrRecordNotFound indica que no se encontró ningún registro para los criterios dados
	// en operaciones como SearchOne o ReadOne.
	ErrRecordNotFound = errors.New("odoograph: no record found for the given criteria")

	// ErrInvalidModel indica que el modelo de Odoo especificado no existe o es inválido.
	ErrInvalidModel = errors.New("odoograph: invalid Odoo model")

	// ErrInvalidMethod indica que el método especificado no existe para el modelo de Odoo dado.
	ErrInvalidMethod = errors.New("odoograph: invalid Odoo method for the model")

	// ErrAccessDenied means Odoo refused the call, usually because the
	// session expired or the password changed. The client re-authenticates
	// once before surfacing it.
	ErrAccessDenied = errors.New("odoograph: access denied")

	// ErrOdooRPC es un error genérico para cualquier fallo en la llamada XML-RPC a Odoo,
	// cuando no se puede clasificar más específicamente.
	ErrOdooRPC = errors.New("odoograph: Odoo XML-RPC call failed")

	// ErrInvalidResponse is returned when the Odoo RPC response is
	// malformed or not in the expected format.
	ErrInvalidResponse = errors.New("odoograph: invalid Odoo RPC response")
)

// RPCError representa un error estructurado devuelto por el servidor Odoo XML-RPC.
type RPCError struct {
	OriginalError error  // El error subyacente de la librería xmlrpc
	Code          int    // Código de fault de Odoo, 0 si no se pudo extraer
	Message       string // Mensaje de error de Odoo
}

// Error implementa la interfaz error para RPCError.
func (e *RPCError) Error() string {
	if e.OriginalError != nil {
		return fmt.Sprintf("%s: %s (original: %v)", ErrOdooRPC, e.Message, e.OriginalError)
	}
	return fmt.Sprintf("%s: %s", ErrOdooRPC, e.Message)
}

// Unwrap permite el uso de errors.Is y errors.As con RPCError.
func (e *RPCError) Unwrap() error {
	return e.OriginalError
}

// Is makes errors.Is(err, ErrOdooRPC) hold for every RPCError.
func (e *RPCError) Is(target error) bool {
	return target == ErrOdooRPC
}

// faultPattern matches the fault renderings seen from XML-RPC clients:
// "<Fault 1: 'msg'>", "Fault(1): msg" and "fault 1: msg".
var faultPattern = regexp.MustCompile(`(?is)fault\s*\(?(-?\d+)\)?:\s*'?(.*?)'?>?\s*$`)

// attributePattern extracts the attribute name of a Python AttributeError.
var attributePattern = regexp.MustCompile(`has no attribute ['"]?(\w+)`)

// parseRPCError classifies an error returned by the xmlrpc package, which
// only carries the fault as text. method is the model method that was called;
// an AttributeError is only a missing method when it names that method.
func parseRPCError(err error, method string) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()
	faultCode := 0
	faultMessage := errMsg

	if matches := faultPattern.FindStringSubmatch(errMsg); len(matches) == 3 {
		if code, cerr := strconv.Atoi(matches[1]); cerr == nil {
			faultCode = code
		}
		faultMessage = matches[2]
	}

	var missingAttr string
	if m := attributePattern.FindStringSubmatch(faultMessage); len(m) == 2 {
		missingAttr = m[1]
	}

	switch {
	case strings.Contains(faultMessage, "The model does not exist"),
		strings.Contains(faultMessage, "No model named"),
		strings.Contains(faultMessage, "not found in registry"),
		strings.Contains(faultMessage, "'object' object has no attribute") && strings.Contains(faultMessage, "model"):
		return fmt.Errorf("%w: %s (original: %w)", ErrInvalidModel, faultMessage, err)

	case strings.Contains(faultMessage, "Object has no method"),
		strings.Contains(faultMessage, "method does not exist"),
		method != "" && missingAttr == method:
		return fmt.Errorf("%w: %s (original: %w)", ErrInvalidMethod, faultMessage, err)

	case strings.Contains(faultMessage, "AccessDenied"),
		strings.Contains(faultMessage, "Access Denied"),
		strings.Contains(faultMessage, "SessionExpired"),
		strings.Contains(strings.ToLower(faultMessage), "invalid session"):
		return fmt.Errorf("%w: %s (original: %w)", ErrAccessDenied, faultMessage, err)
	}

	return &RPCError{
		OriginalError: err,
		Code:          faultCode,
		Message:       faultMessage,
	}
}
