package dto

// ErrorResponse cuerpo de error HTTP. Field indica el campo de la petición
// que provocó el rechazo, cuando aplica.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Field   string   `json:"field,omitempty"`
	Errors  []string `json:"errores,omitempty"`
}

// HistoryEntry operación registrada en la auditoría.
type HistoryEntry struct {
	Operation string `json:"operacion"`
	Before    any    `json:"antes,omitempty"`
	After     any    `json:"despues,omitempty"`
	Actor     string `json:"actor,omitempty"`
	At        string `json:"fecha"`
}
