package types

// RequestIDHeader carries the per-request correlation id on requests and responses.
const RequestIDHeader = "X-Request-Id"

// SuccessEnvelope wraps every 2xx payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public shape of a failed call. Retryable tells clients a
// sale or assignment may be resent under the same Idempotency-Key.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
