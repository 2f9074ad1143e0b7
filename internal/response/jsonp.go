// Package response unwraps the portal's JSONP envelopes and decodes the
// four response kinds into typed records.
package response

import (
	"strings"

	srunerr "github.com/atinyakov/srun-login/internal/errors"
)

// Unwrap returns the JSON text between the first '(' and the last ')' of a
// JSONP body, trimmed of surrounding whitespace.
func Unwrap(body string) (string, error) {
	start := strings.IndexByte(body, '(')
	end := strings.LastIndexByte(body, ')')
	if start < 0 || end < 0 || end <= start {
		return "", &srunerr.EnvelopeFormatError{Body: body}
	}
	return strings.TrimSpace(body[start+1 : end]), nil
}
