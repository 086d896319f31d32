package errors

// ErrorResponse is the JSON body returned by the HTTP layer for a failed attempt.
type ErrorResponse struct {
	Code        Kind   `json:"error"`
	Description string `json:"error_description,omitempty"`
	// FallbackLoginURL points the user back at the conventional login page.
	FallbackLoginURL string `json:"fallback_login_url,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return string(e.Code) + ": " + e.Description
}

// NewErrorResponse classifies err and localizes its message.
func NewErrorResponse(err error, lang, fallbackLoginURL string) *ErrorResponse {
	kind := KindOf(err)
	return &ErrorResponse{
		Code:             kind,
		Description:      Message(kind, lang),
		FallbackLoginURL: fallbackLoginURL,
	}
}
