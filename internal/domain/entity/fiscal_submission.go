package entity

import "time"

// FiscalSubmissionResult respuesta de la autoridad tributaria a un envío.
type FiscalSubmissionResult struct {
	Accepted  bool      `json:"aceptada"`
	Code      string    `json:"codigo"`
	Status    string    `json:"estado"`
	Message   string    `json:"mensaje,omitempty"`
	CSV       string    `json:"csv,omitempty"` // código seguro de verificación
	Timestamp time.Time `json:"fecha"`
	Attempts  int       `json:"intentos"`
}
