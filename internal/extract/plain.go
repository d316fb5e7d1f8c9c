package extract

import (
	"errors"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned for plain text that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("invalid UTF-8")

// extractPlain returns content as a string. Content that is not valid UTF-8 is rejected so
// the file is skipped instead of being indexed with replacement characters.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", ErrInvalidEncoding
	}
	return string(content), nil
}
