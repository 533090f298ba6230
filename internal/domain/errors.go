package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound      = errors.New("recurso no encontrado")
	ErrInvalidInput  = errors.New("entrada inválida")
	ErrDuplicate     = errors.New("recurso duplicado")
	ErrUnauthorized  = errors.New("no autorizado")
	ErrForbidden     = errors.New("acceso denegado")
	ErrConflict      = errors.New("conflicto con el estado actual")
	ErrNotSigned     = errors.New("la factura no está firmada")
	ErrNoCertificate = errors.New("certificado no disponible")
)

// Códigos de validación expuestos al cliente.
const (
	CodeMissingCompany          = "MISSING_COMPANY"
	CodeCompanyNotFound         = "COMPANY_NOT_FOUND"
	CodeCustomerNotFound        = "CUSTOMER_NOT_FOUND"
	CodeProformaNotFound        = "PROFORMA_NOT_FOUND"
	CodeVehicleNotFound         = "VEHICLE_NOT_FOUND"
	CodeVehicleAlreadyInvoiced  = "VEHICLE_ALREADY_INVOICED"
	CodeDuplicateInvoiceNumber  = "DUPLICATE_INVOICE_NUMBER"
	CodeInvalidDate             = "INVALID_DATE"
	CodeInvalidTotals           = "INVALID_TOTALS"
	CodeEmptyLines              = "EMPTY_LINES"
	CodeInvalidLine             = "INVALID_LINE"
	CodeInvalidField            = "INVALID_FIELD"
	CodeInvalidState            = "INVALID_STATE"
	CodeCertificateNotFound     = "CERTIFICATE_NOT_FOUND"
	CodeCertificateIncompatible = "CERTIFICATE_INCOMPATIBLE"
)

// ValidationError rechazo previo a cualquier mutación. Se expone con código y campo.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap permite errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError atajo para construir el error.
func NewValidationError(code, field, msg string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: msg}
}

// ConflictError identidad duplicada (número, NIF, código).
type ConflictError struct {
	Code    string
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// FiscalValidationError el XML fiscal no pasó la validación estructural.
type FiscalValidationError struct {
	Errors []string
}

func (e *FiscalValidationError) Error() string {
	return "xml fiscal inválido: " + strings.Join(e.Errors, "; ")
}
