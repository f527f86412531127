package http

// ErrorBody is the body of every non-2xx API response.
type ErrorBody struct {
	Error string `json:"error"`
}

// ValidationError describes one failed field rule.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}
