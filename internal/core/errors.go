package core

// ErrorKind classifies a dispatch rejection.
type ErrorKind int

const (
	// ErrProtocol covers unparseable envelopes and unknown type tags.
	ErrProtocol ErrorKind = iota
	// ErrValidation covers length, emptiness and charset violations.
	ErrValidation
	// ErrRateLimit covers chat and AI sliding-window rejections.
	ErrRateLimit
	// ErrAIService covers every AI gateway failure mode.
	ErrAIService
)

// Error is a dispatch rejection destined for an error unicast. It never
// terminates the connection it is reported on.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func protocolError(msg string) *Error {
	return &Error{Kind: ErrProtocol, Message: msg}
}

func validationError(msg string) *Error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func rateLimitError(msg string) *Error {
	return &Error{Kind: ErrRateLimit, Message: msg}
}

func aiServiceError(msg string) *Error {
	return &Error{Kind: ErrAIService, Message: msg}
}
