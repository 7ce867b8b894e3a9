package models

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// FieldErrorResponse adds per-parameter messages to an ErrorResponse.
type FieldErrorResponse struct {
	Error  string              `json:"error"`
	Code   int                 `json:"code"`
	Fields map[string][]string `json:"fields"`
}
