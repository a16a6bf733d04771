package lightdb

import (
	"github.com/juju/errors"
)

// Error kinds. Classify with errors.Cause(err) == ErrX or errors.Is(err, ErrX).
var (
	ErrEncoding        = errors.New("encoding")
	ErrDecoding        = errors.New("decoding")
	ErrResponseTimeout = errors.New("response timeout")
	ErrTransport       = errors.New("transport")
	ErrDeserialization = errors.New("deserialization")
	ErrStatus          = errors.New("response status")

	ErrClosing    = errors.New("client is closing")
	ErrTokenInUse = errors.New("token is already pending")
)

var kinds = []error{
	ErrEncoding,
	ErrDecoding,
	ErrResponseTimeout,
	ErrTransport,
	ErrDeserialization,
	ErrStatus,
}

// kindError keeps original error message and reports kind as Cause.
type kindError struct {
	kind error
	err  error
}

// WithKind classifies err as one of Err* kinds, keeping its message.
func WithKind(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == kind {
		if _, ok := err.(*kindError); ok {
			return err
		}
		return &kindError{kind: kind, err: err}
	}
	return &kindError{kind: kind, err: errors.Annotate(err, kind.Error())}
}

func (e *kindError) Error() string        { return e.err.Error() }
func (e *kindError) Cause() error         { return e.kind }
func (e *kindError) Unwrap() error        { return e.err }
func (e *kindError) Is(target error) bool { return target == e.kind }

// Kind returns one of Err* kinds or nil for unclassified errors.
func Kind(err error) error {
	cause := errors.Cause(err)
	for _, k := range kinds {
		if cause == k {
			return k
		}
	}
	return nil
}

// annotatef keeps kind of err on top, so errors.Is still works after annotation.
func annotatef(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	a := errors.Annotatef(err, format, args...)
	if k := Kind(err); k != nil {
		return &kindError{kind: k, err: a}
	}
	return a
}
