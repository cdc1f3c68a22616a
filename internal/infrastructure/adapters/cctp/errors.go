package cctp

import "fmt"

// ErrorResponse represents an Iris API error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("attestation API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

// ErrNoMessages indicates the service has no entries for the burn tx yet
var ErrNoMessages = fmt.Errorf("no messages found for transaction")

// ErrPollingStopped indicates the poll loop observed a cancellation and
// stopped cooperatively. Not a failure.
var ErrPollingStopped = fmt.Errorf("attestation polling stopped")

// ErrPollDeadlineExceeded indicates the optional poll ceiling elapsed
var ErrPollDeadlineExceeded = fmt.Errorf("attestation poll deadline exceeded")

// ErrReattestationFailed indicates the re-attestation request was rejected
var ErrReattestationFailed = fmt.Errorf("re-attestation request failed")
