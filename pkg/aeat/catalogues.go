// Package aeat contiene catálogos y validaciones alineados con el sistema
// de registro de facturación (Verifactu) de la AEAT y con el IGIC canario.
package aeat

import "github.com/shopspring/decimal"

// =============================================================================
// L2 - Tipo de factura
// =============================================================================

const (
	TipoFacturaCompleta      = "F1" // Factura (art. 6, 7.2 y 7.3 del RD 1619/2012)
	TipoFacturaSimplificada  = "F2" // Factura simplificada (ticket)
	TipoFacturaSustitutiva   = "F3" // Emitida en sustitución de simplificadas
	TipoFacturaRectificativa = "R1" // Rectificativa (art. 80.1, 80.2 y error fundado en derecho)
)

// ValidTipoFactura códigos admitidos en TipoFactura.
var ValidTipoFactura = map[string]bool{
	TipoFacturaCompleta:      true,
	TipoFacturaSimplificada:  true,
	TipoFacturaSustitutiva:   true,
	TipoFacturaRectificativa: true,
}

// =============================================================================
// L1 - Impuesto
// =============================================================================

const (
	ImpuestoIVA   = "01" // Impuesto sobre el Valor Añadido
	ImpuestoIPSI  = "02" // Ceuta y Melilla
	ImpuestoIGIC  = "03" // Impuesto General Indirecto Canario
	ImpuestoOtros = "05"
)

// TaxTypeCode traduce el tipo_impuesto de la petición ("igic", "iva") al código L1.
func TaxTypeCode(kind string) string {
	switch kind {
	case "iva", "IVA":
		return ImpuestoIVA
	case "ipsi", "IPSI":
		return ImpuestoIPSI
	case "", "igic", "IGIC":
		return ImpuestoIGIC
	default:
		return ImpuestoOtros
	}
}

// Tipos impositivos vigentes (porcentaje).
var (
	IGICRates = []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(3),
		decimal.NewFromInt(5),
		decimal.NewFromInt(7),
		decimal.RequireFromString("9.5"),
		decimal.NewFromInt(15),
		decimal.NewFromInt(20),
	}
	IVARates = []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(4),
		decimal.NewFromInt(10),
		decimal.NewFromInt(21),
	}
)

// IGICGeneral tipo general del IGIC aplicado a la venta de vehículos.
var IGICGeneral = decimal.NewFromInt(7)

// =============================================================================
// L8A - Clave de régimen
// =============================================================================

const (
	ClaveRegimenGeneral = "01"
	ClaveRegimenREBU    = "03" // Régimen especial de bienes usados (vehículos de ocasión)
)

// =============================================================================
// L9 - Calificación de la operación
// =============================================================================

const (
	CalificacionSujetaNoExenta       = "S1"
	CalificacionSujetaInversion      = "S2" // inversión del sujeto pasivo
	CalificacionNoSujetaArticulos    = "N1"
	CalificacionNoSujetaLocalizacion = "N2"
)

// =============================================================================
// Formas de pago (texto libre en la factura; catálogo interno)
// =============================================================================

const (
	MetodoPagoTransferencia = "transferencia"
	MetodoPagoEfectivo      = "efectivo"
	MetodoPagoTarjeta       = "tarjeta"
	MetodoPagoFinanciacion  = "financiacion"
)

// ValidMetodoPago métodos de pago aceptados en la cabecera.
var ValidMetodoPago = map[string]bool{
	MetodoPagoTransferencia: true,
	MetodoPagoEfectivo:      true,
	MetodoPagoTarjeta:       true,
	MetodoPagoFinanciacion:  true,
}

// =============================================================================
// Estado del envío (respuesta simulada)
// =============================================================================

const (
	EstadoEnvioCorrecto           = "Correcto"
	EstadoEnvioAceptadoConErrores = "AceptadoConErrores"
	EstadoEnvioIncorrecto         = "Incorrecto"
)

// Namespaces del esquema de registro.
const (
	NamespaceSuministroLR   = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroLR.xsd"
	NamespaceSuministroInfo = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroInformacion.xsd"
	VersionRegistro         = "1.0"
)
