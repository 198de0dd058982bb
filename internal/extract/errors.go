package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat means no reader is registered for the MIME type and the
	// bytes are not usable as UTF-8 text. Not retryable.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrCorruptInput means the bytes do not parse as the declared format. Not retryable.
	ErrCorruptInput = errors.New("corrupt input")
)

func corrupt(format string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptInput, format, err)
}
