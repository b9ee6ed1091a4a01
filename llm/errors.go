package llm

import (
	"fmt"
	"strings"
)

// APIError is a non-2xx response from a provider. Its message keeps the
// "<Provider> API request failed: <status> <body>" wording that retry
// classification matches on.
type APIError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" && e.Err != nil {
		body = e.Err.Error()
	}
	return fmt.Sprintf("%s API request failed: %d %s", e.Provider, e.Status, body)
}

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus exposes the status to retry classification.
func (e *APIError) HTTPStatus() int { return e.Status }
