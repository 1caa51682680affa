package storeapi

import "fmt"

// ValidationError is a rejection by the storefront backend: the request
// reached the server and was refused on its content. No call should be
// retried without changing the input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "request rejected by storefront backend"
	}
	return e.Message
}

// NetworkError covers transport failures and 5xx responses.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SchemaError means the backend answered 2xx but the expected field was
// absent in both the flat and the data-wrapped response shape. Logged
// distinctly from NetworkError for diagnosis; user-facing handling is the
// same.
type SchemaError struct {
	Endpoint string
	Field    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: response has no %q field", e.Endpoint, e.Field)
}
