package gate

import (
	"errors"
	"fmt"

	"fish-tracker/internal/model"
)

// Client input. Rejected before any user lookup.
var (
	ErrMissingUser     = errors.New("missing user id")
	ErrEmptyToken      = errors.New("empty request body")
	ErrUnknownKind     = errors.New("unknown event kind")
	ErrInvalidGamemode = errors.New("invalid gamemode")
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrIncompleteUser = errors.New("user record incomplete")
	ErrDecrypt        = errors.New("decryption failed")
	ErrBadJSON        = errors.New("decrypted payload is not valid JSON")
	ErrBadShape       = errors.New("invalid data")
)

// ShapeError reports a decrypted payload whose key set or field types do not
// match the expected variant.
type ShapeError struct {
	Kind     model.Kind
	Expected string
	Reason   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid data: %s (expected %s)", e.Reason, e.Expected)
}

func (e *ShapeError) Is(target error) bool { return target == ErrBadShape }

func shapeErr(kind model.Kind, format string, args ...any) error {
	return &ShapeError{Kind: kind, Expected: ExpectedShape(kind), Reason: fmt.Sprintf(format, args...)}
}

// ExpectedShape is the canonical payload for kind, echoed back to clients.
func ExpectedShape(kind model.Kind) string {
	if kind == model.KindCrab {
		return `{"fish":"crab"}`
	}
	return `{"fish":"<name>","rarity":<integer>}`
}

type Class int

const (
	ClassInternal Class = iota
	ClassClientInput
	ClassNotFound
	ClassAuthenticity
	ClassServerIntegrity
)

func (c Class) String() string {
	switch c {
	case ClassClientInput:
		return "client_input"
	case ClassNotFound:
		return "not_found"
	case ClassAuthenticity:
		return "authenticity"
	case ClassServerIntegrity:
		return "server_integrity"
	default:
		return "internal"
	}
}

// ClassOf buckets an error returned by the gate.
func ClassOf(err error) Class {
	switch {
	case errors.Is(err, ErrMissingUser), errors.Is(err, ErrEmptyToken),
		errors.Is(err, ErrUnknownKind), errors.Is(err, ErrInvalidGamemode):
		return ClassClientInput
	case errors.Is(err, ErrUserNotFound):
		return ClassNotFound
	case errors.Is(err, ErrDecrypt), errors.Is(err, ErrBadJSON), errors.Is(err, ErrBadShape):
		return ClassAuthenticity
	case errors.Is(err, ErrIncompleteUser):
		return ClassServerIntegrity
	default:
		return ClassInternal
	}
}

// Reason is a short stable label for logs and metrics.
func Reason(err error) string {
	if err == nil {
		return "accepted"
	}
	for _, r := range []struct {
		err   error
		label string
	}{
		{ErrMissingUser, "missing_user"},
		{ErrEmptyToken, "empty_token"},
		{ErrUnknownKind, "unknown_kind"},
		{ErrInvalidGamemode, "invalid_gamemode"},
		{ErrUserNotFound, "user_not_found"},
		{ErrIncompleteUser, "incomplete_user"},
		{ErrDecrypt, "decrypt_failed"},
		{ErrBadJSON, "bad_json"},
		{ErrBadShape, "bad_shape"},
	} {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return ClassInternal.String()
}
