package gateway

import "fmt"

// GatewayError is a non-success response from one of the API
// endpoints (slot, list, status).
type GatewayError struct {
	Op         string
	StatusCode int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: unexpected status %d", e.Op, e.StatusCode)
}

// UploadError is a non-success response from the storage PUT itself.
type UploadError struct {
	StatusCode int
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("storage upload: unexpected status %d", e.StatusCode)
}
