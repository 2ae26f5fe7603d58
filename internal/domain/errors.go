package domain

import "errors"

// UserError is a failure caused by configuration or destination state rather
// than a bug. Message is safe to show as is.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}

	return e.Message + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userError(message string, err error) error {
	return &UserError{Message: message, Err: err}
}

// IsUserError reports whether err carries a UserError.
func IsUserError(err error) bool {
	var ue *UserError

	return errors.As(err, &ue)
}
