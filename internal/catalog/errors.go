package catalog

import "fmt"

// Kind classifies failures that callers are expected to surface to users.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindBadRequest:
		return "bad request"
	default:
		return "unknown"
	}
}

// Error is returned by the service when a target is missing or a structural
// precondition does not hold. Store failures are wrapped errors instead.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrBadRequest = &Error{Kind: KindBadRequest}
)

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}
