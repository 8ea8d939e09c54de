package types

// SuccessEnvelope wraps every 2xx admin payload, including degraded sweep
// results.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a pkg/errors code. Retryable tells callers
// such as onboardctl whether repeating the same call later can succeed, e.g.
// after a running sweep finishes.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
