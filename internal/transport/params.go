package transport

import (
	"net/url"
	"strings"
)

// Param is one query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered query. Unlike url.Values it encodes in insertion order,
// which the portal's own client uses.
type Params []Param

// Add appends a parameter and returns the extended list.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Get returns the first value for key.
func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Encode renders the parameters as a URL query string.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}
