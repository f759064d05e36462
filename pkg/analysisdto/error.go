package analysisdto

// DomainError is the JSON error body of the control API.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "analysis board error"
}

// ErrorResponse carries the error and, for board actions, the snapshot
// published after the failed action.
type ErrorResponse struct {
	Error    DomainError `json:"error"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
}
