package response

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	srunerr "github.com/atinyakov/srun-login/internal/errors"
)

// decoder reads typed fields out of a JSON object. The first failure sticks;
// later reads are no-ops and Err reports it.
type decoder struct {
	fields map[string]json.RawMessage
	err    error
}

func newDecoder(text string) (*decoder, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, &srunerr.DecodeError{Reason: err.Error()}
	}
	if fields == nil {
		return nil, &srunerr.DecodeError{Reason: "not a JSON object"}
	}
	return &decoder{fields: fields}, nil
}

func (d *decoder) Err() error {
	return d.err
}

func (d *decoder) fail(field, reason string) {
	if d.err == nil {
		d.err = &srunerr.DecodeError{Field: field, Reason: reason}
	}
}

// raw returns the trimmed field bytes, or nil when missing or null.
func (d *decoder) raw(field string) []byte {
	v, ok := d.fields[field]
	if !ok {
		return nil
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil
	}
	return v
}

// requireString reads a mandatory string field.
func (d *decoder) requireString(field string) string {
	if d.err != nil {
		return ""
	}
	v := d.raw(field)
	if v == nil {
		d.fail(field, "missing")
		return ""
	}
	if v[0] != '"' {
		d.fail(field, "expected string")
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		d.fail(field, err.Error())
	}
	return s
}

// Optional fields never fail a decode: a value of the wrong type, a negative
// or fractional counter, or a non-finite number reads as absent.

// str reads an optional string field. Numbers are accepted and kept as their literal text.
func (d *decoder) str(field string) Opt[string] {
	if d.err != nil {
		return None[string]()
	}
	v := d.raw(field)
	switch {
	case v == nil:
		return None[string]()
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return None[string]()
		}
		return Some(s)
	case isNumber(v):
		return Some(string(v))
	default:
		return None[string]()
	}
}

// unsigned reads an optional unsigned integer sent either as a number or a numeric string.
// An empty string counts as absent.
func (d *decoder) unsigned(field string) Opt[uint64] {
	text, ok := d.numeric(field)
	if !ok {
		return None[uint64]()
	}
	if n, err := strconv.ParseUint(text, 10, 64); err == nil {
		return Some(n)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f >= math.MaxUint64 {
		return None[uint64]()
	}
	return Some(uint64(f))
}

// number reads an optional finite number sent either as a number or a numeric string.
func (d *decoder) number(field string) Opt[float64] {
	text, ok := d.numeric(field)
	if !ok {
		return None[float64]()
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return None[float64]()
	}
	return Some(f)
}

// jsonNumber is the JSON number grammar. strconv alone would also take
// "NaN", "Inf" and hex floats.
var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// numeric returns the text of a number field, unquoting numeric strings.
func (d *decoder) numeric(field string) (string, bool) {
	if d.err != nil {
		return "", false
	}
	v := d.raw(field)
	var text string
	switch {
	case v == nil:
		return "", false
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		text = strings.TrimSpace(s)
	case isNumber(v):
		text = string(v)
	default:
		return "", false
	}
	if !jsonNumber.MatchString(text) {
		return "", false
	}
	return text, true
}

func isNumber(v []byte) bool {
	return len(v) > 0 && (v[0] == '-' || (v[0] >= '0' && v[0] <= '9'))
}
