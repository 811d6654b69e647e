package domain

// ActionResult is Success(payload) or Failure(kind, detail, raw).
type ActionResult struct {
	Payload any
	Err     *Error
}

// Succeed wraps a successful upstream payload.
func Succeed(payload any) ActionResult {
	return ActionResult{Payload: payload}
}

// Fail builds a failed result.
func Fail(kind ErrorKind, detail string, raw any) ActionResult {
	return ActionResult{Err: &Error{Kind: kind, Detail: detail, Raw: raw}}
}

// FailWith wraps an error, classifying it when needed.
func FailWith(err error) ActionResult {
	return ActionResult{Err: AsError(err)}
}

// OK reports whether the result is a success.
func (r ActionResult) OK() bool { return r.Err == nil }

// Envelope is the uniform result every tool returns.
type Envelope struct {
	IsError bool   `json:"isError"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Kind    string `json:"errorKind,omitempty"`
}
